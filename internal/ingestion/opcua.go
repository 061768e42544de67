package ingestion

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// OPCUATransport is a minimal stdlib stand-in for an OPC-UA server
// accepting pushed readings from clients: it terminates TLS and
// authenticates the peer by the subject common name of its client
// certificate, then reads newline-delimited payloads. A real
// deployment swaps this for gopcua/opcua with a proper secure channel.
type OPCUATransport struct {
	addr     string
	tlsConf  *tls.Config

	ln  net.Listener
	out chan RawMessage

	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewOPCUATransport builds a transport listening on addr with TLS
// client-certificate authentication. tlsConf must set
// ClientAuth: tls.RequireAndVerifyClientCert.
func NewOPCUATransport(addr string, tlsConf *tls.Config) *OPCUATransport {
	return &OPCUATransport{addr: addr, tlsConf: tlsConf, conns: make(map[string]net.Conn)}
}

func (t *OPCUATransport) Name() string { return "opcua" }

func (t *OPCUATransport) Listen(ctx context.Context) (<-chan RawMessage, error) {
	ln, err := tls.Listen("tcp", t.addr, t.tlsConf)
	if err != nil {
		return nil, fmt.Errorf("opcua listen: %w", err)
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

func (t *OPCUATransport) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return
	}
	peerID := certs[0].Subject.CommonName
	if peerID == "" {
		return
	}

	t.mu.Lock()
	t.conns[peerID] = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, peerID)
		t.mu.Unlock()
	}()

	r := bufio.NewReader(conn)
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

// Busy writes an overload marker frame back to the peer's connection,
// matching the spec's "OPC-UA drops with an overload marker".
func (t *OPCUATransport) Busy(peerID string) {
	t.mu.Lock()
	conn, ok := t.conns[peerID]
	t.mu.Unlock()
	if !ok {
		return
	}
	_, _ = conn.Write([]byte("OVERLOAD\n"))
}

func (t *OPCUATransport) Close() error {
	if t.ln != nil {
		return t.ln.Close()
	}
	return nil
}
