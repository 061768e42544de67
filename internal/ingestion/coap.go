package ingestion

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// CoAPTransport is a minimal stdlib stand-in for a CoAP server over
// UDP: each datagram is "peerID:psk:payload", verified against a
// pre-shared key map in place of real DTLS. A real deployment swaps
// this for plgd-dev/go-coap/v3 with DTLS enabled.
type CoAPTransport struct {
	addr string
	psks map[string]string // peerID -> pre-shared key

	conn *net.UDPConn
	out  chan RawMessage

	mu    sync.Mutex
	peers map[string]*net.UDPAddr // peerID -> last seen address, for Busy replies
}

// NewCoAPTransport builds a transport listening on addr (UDP).
func NewCoAPTransport(addr string, psks map[string]string) *CoAPTransport {
	return &CoAPTransport{addr: addr, psks: psks, peers: make(map[string]*net.UDPAddr)}
}

func (t *CoAPTransport) Name() string { return "coap" }

func (t *CoAPTransport) Listen(ctx context.Context) (<-chan RawMessage, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("coap resolve: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("coap listen: %w", err)
	}
	t.conn = conn
	t.out = make(chan RawMessage, 256)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go t.readLoop(ctx)

	return t.out, nil
}

func (t *CoAPTransport) readLoop(ctx context.Context) {
	defer close(t.out)
	buf := make([]byte, 64*1024)
	for {
		n, peerAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		parts := strings.SplitN(string(buf[:n]), ":", 3)
		if len(parts) != 3 {
			continue
		}
		peerID, psk, payload := parts[0], parts[1], parts[2]
		expected, ok := t.psks[peerID]
		if !ok || subtle.ConstantTimeCompare([]byte(psk), []byte(expected)) != 1 {
			continue
		}

		t.mu.Lock()
		t.peers[peerID] = peerAddr
		t.mu.Unlock()

		select {
		case t.out <- RawMessage{PeerID: peerID, Payload: []byte(payload), ReceiveAt: time.Now().UTC()}:
		case <-ctx.Done():
			return
		}
	}
}

// Busy replies to the peer's last-seen address with a 5.03 Service
// Unavailable style marker datagram.
func (t *CoAPTransport) Busy(peerID string) {
	t.mu.Lock()
	addr, ok := t.peers[peerID]
	t.mu.Unlock()
	if t.conn == nil || !ok {
		return
	}
	_, _ = t.conn.WriteToUDP([]byte("5.03 service busy"), addr)
}

func (t *CoAPTransport) Close() error {
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
