package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Credentials verifies a peer's hashed password, shared by the MQTT and
// AMQP transports (both authenticate with client credentials / SASL
// PLAIN, which reduce to the same username+secret check).
type Credentials interface {
	// VerifySecret reports whether secret matches the stored hash for peerID.
	VerifySecret(ctx context.Context, peerID, secret string) bool
}

// BcryptCredentials backs Credentials with an in-memory bcrypt hash
// table, grounded on the teacher's AgentAuthMiddleware bcrypt check.
type BcryptCredentials struct {
	hashes map[string][]byte
}

// NewBcryptCredentials builds a credential store from plaintext-hash
// pairs (peerID -> bcrypt hash), as loaded from the tenant's device
// registration records.
func NewBcryptCredentials(hashes map[string][]byte) *BcryptCredentials {
	return &BcryptCredentials{hashes: hashes}
}

func (c *BcryptCredentials) VerifySecret(ctx context.Context, peerID, secret string) bool {
	hash, ok := c.hashes[peerID]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// MQTTTransport is a minimal stdlib stand-in for an MQTT subscriber: it
// accepts TCP connections, authenticates the first line as
// "peerID:password", and treats every subsequent line as one
// newline-delimited JSON payload. A real deployment swaps this for
// eclipse/paho.golang against a broker; this default is enough to drive
// the shared Adapter pipeline end to end.
type MQTTTransport struct {
	addr   string
	creds  Credentials
	ln     net.Listener
	out    chan RawMessage
	closed chan struct{}
}

// NewMQTTTransport builds a transport listening on addr.
func NewMQTTTransport(addr string, creds Credentials) *MQTTTransport {
	return &MQTTTransport{addr: addr, creds: creds, closed: make(chan struct{})}
}

func (t *MQTTTransport) Name() string { return "mqtt" }

func (t *MQTTTransport) Listen(ctx context.Context) (<-chan RawMessage, error) {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("mqtt listen: %w", err)
	}
	t.ln = ln
	t.out = make(chan RawMessage, 256)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go func() {
		defer close(t.out)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go t.handleConn(ctx, conn)
		}
	}()

	return t.out, nil
}

func (t *MQTTTransport) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	authLine, err := r.ReadString('\n')
	if err != nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(authLine), ":", 2)
	if len(parts) != 2 || !t.creds.VerifySecret(ctx, parts[0], parts[1]) {
		return
	}
	peerID := parts[0]

	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			select {
			case t.out <- RawMessage{PeerID: peerID, Payload: []byte(strings.TrimSpace(line)), ReceiveAt: time.Now().UTC()}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Busy defers the ack by doing nothing; the client's own keep-alive and
// re-publish behavior handles redelivery, matching how an MQTT QoS 1
// subscriber would withhold its PUBACK under backpressure.
func (t *MQTTTransport) Busy(peerID string) {}

func (t *MQTTTransport) Close() error {
	if t.ln != nil {
		return t.ln.Close()
	}
	return nil
}
