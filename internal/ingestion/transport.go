// Package ingestion implements C3: protocol adapters that turn peer
// traffic into unified telemetry records and hand them to the store
// and cache.
//
// Each protocol (MQTT, CoAP, AMQP, OPC-UA) is isolated behind a narrow
// Transport boundary so a real client library can be swapped in for
// the default stdlib transport without touching Adapter itself.
package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RawMessage is whatever bytes a Transport hands up before parsing, plus
// the peer identity the protocol layer authenticated.
type RawMessage struct {
	PeerID    string
	Payload   []byte
	ReceiveAt time.Time
}

// Transport is the narrow per-protocol boundary. Implementations
// authenticate peers using their own protocol's mechanism (MQTT client
// credentials, AMQP SASL, OPC-UA certificate, CoAP DTLS PSK) and push
// authenticated messages onto the channel returned by Listen.
//
// Busy signals a transport-specific backpressure response: MQTT/AMQP
// defer the ack so the broker redelivers later, CoAP replies 5.03
// Service Unavailable, OPC-UA tags the write with an overload marker.
type Transport interface {
	// Listen starts accepting peer traffic and returns a channel of
	// authenticated raw messages. It must not block; Listen spawns its
	// own goroutine(s) and stops them when ctx is canceled.
	Listen(ctx context.Context) (<-chan RawMessage, error)

	// Busy signals backpressure for the given peer using the
	// transport's native mechanism.
	Busy(peerID string)

	// Close releases any transport-held resources (sockets, subscriptions).
	Close() error

	// Name identifies the transport in logs and dead-letter records.
	Name() string
}

// PeerResolver maps an authenticated peer id to the (tenant, device)
// pair it is registered against. Unknown peers are rejected per §4.3
// step 2.
type PeerResolver interface {
	ResolvePeer(ctx context.Context, transport, peerID string) (*PeerRegistration, error)
}

// PeerRegistration is the result of a peer lookup.
type PeerRegistration struct {
	TenantID uuid.UUID
	DeviceID uuid.UUID
}
