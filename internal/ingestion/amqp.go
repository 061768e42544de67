package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// AMQPTransport is a minimal stdlib stand-in for an AMQP consumer: it
// accepts TCP connections, authenticates with a SASL-PLAIN-style first
// line ("peerID:password"), then treats every subsequent line as one
// message delivery. A real deployment swaps this for
// rabbitmq/amqp091-go against a broker exchange/queue.
type AMQPTransport struct {
	addr  string
	creds Credentials

	ln  net.Listener
	out chan RawMessage

	mu    sync.Mutex
	conns map[string]net.Conn // peerID -> connection, for Busy deferral
}

// NewAMQPTransport builds a transport listening on addr.
func NewAMQPTransport(addr string, creds Credentials) *AMQPTransport {
	return &AMQPTransport{addr: addr, creds: creds, conns: make(map[string]net.Conn)}
}

func (t *AMQPTransport) Name() string { return "amqp" }

func (t *AMQPTransport) Listen(ctx context.Context) (<-chan RawMessage, error) {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("amqp listen: %w", err)
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

func (t *AMQPTransport) handleConn(ctx context.Context, conn net.Conn) {
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

	t.mu.Lock()
	t.conns[peerID] = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, peerID)
		t.mu.Unlock()
	}()

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

// Busy defers the delivery ack: a real AMQP consumer would nack with
// requeue=true, causing the broker to redeliver later. This stand-in
// has no broker to nack against, so it is a no-op marker point for
// where that call belongs.
func (t *AMQPTransport) Busy(peerID string) {}

func (t *AMQPTransport) Close() error {
	if t.ln != nil {
		return t.ln.Close()
	}
	return nil
}
