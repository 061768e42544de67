package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/config"
	"github.com/iiot-platform/core/pkg/types"
)

// PushHub fans out NotificationEvents to live subscribers over a
// newline-delimited JSON frame stream, keyed per (tenant, principal),
// with a short replay buffer so a client that reconnects within
// config.PushReplayWindow doesn't miss events (§4.7).
type PushHub struct {
	mu          sync.Mutex
	subscribers map[subKey]map[*subscriber]struct{}
	replay      map[subKey]*replayBuffer
	seq         map[subKey]*int64
	logger      *slog.Logger
	now         func() time.Time
}

type subKey struct {
	tenantID  uuid.UUID
	principal uuid.UUID
}

type subscriber struct {
	frames chan types.PushFrame
}

// NewPushHub builds an empty push hub.
func NewPushHub(logger *slog.Logger) *PushHub {
	return &PushHub{
		subscribers: make(map[subKey]map[*subscriber]struct{}),
		replay:      make(map[subKey]*replayBuffer),
		seq:         make(map[subKey]*int64),
		logger:      logger.With("component", "notify_push"),
		now:         time.Now,
	}
}

// Subscribe registers a new client for (tenantID, principal) and writes
// newline-delimited JSON frames to w until ctx is canceled or the
// write fails. Any buffered replay frames from within the last
// config.PushReplayWindow are sent first.
func (h *PushHub) Subscribe(ctx context.Context, tenantID, principal uuid.UUID, w *bufio.Writer) error {
	key := subKey{tenantID, principal}
	sub := &subscriber{frames: make(chan types.PushFrame, 64)}

	h.mu.Lock()
	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[*subscriber]struct{})
	}
	h.subscribers[key][sub] = struct{}{}
	replayed := h.replay[key]
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers[key], sub)
		h.mu.Unlock()
	}()

	if replayed != nil {
		for _, f := range replayed.since(h.now().Add(-config.PushReplayWindow)) {
			if err := writeFrame(w, f); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-sub.frames:
			if err := writeFrame(w, f); err != nil {
				return err
			}
		}
	}
}

func writeFrame(w *bufio.Writer, f types.PushFrame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// Publish fans event out to every subscriber of (tenantID, principal),
// assigning the next monotonic sequence number for that stream and
// recording the frame in the replay buffer. Never blocks on a slow
// subscriber beyond its small buffer; a full channel drops the frame
// for that subscriber rather than stalling the publisher.
func (h *PushHub) Publish(tenantID, principal uuid.UUID, kind types.EventKind, payload any) {
	key := subKey{tenantID, principal}

	h.mu.Lock()
	seqPtr, ok := h.seq[key]
	if !ok {
		var z int64
		seqPtr = &z
		h.seq[key] = seqPtr
	}
	*seqPtr++
	frame := types.PushFrame{Seq: *seqPtr, Event: kind, Payload: payload}

	rb, ok := h.replay[key]
	if !ok {
		rb = newReplayBuffer()
		h.replay[key] = rb
	}
	rb.add(h.now(), frame)

	subs := make([]*subscriber, 0, len(h.subscribers[key]))
	for s := range h.subscribers[key] {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		select {
		case s.frames <- frame:
		default:
			h.logger.Warn("push subscriber buffer full, dropping frame", "tenant_id", tenantID, "principal", principal)
		}
	}
}

// PublishTenant fans kind/payload out to every principal currently
// subscribed under tenantID, regardless of which principal — used for
// alert.created/alert.state_changed/sla.breached events that any
// connected operator for the tenant should see (decided Open Question
// on push-stream scope).
func (h *PushHub) PublishTenant(tenantID uuid.UUID, kind types.EventKind, payload any) {
	h.mu.Lock()
	principals := make([]uuid.UUID, 0)
	for key := range h.subscribers {
		if key.tenantID == tenantID {
			principals = append(principals, key.principal)
		}
	}
	h.mu.Unlock()

	for _, p := range principals {
		h.Publish(tenantID, p, kind, payload)
	}
}

type replayEntry struct {
	at    time.Time
	frame types.PushFrame
}

type replayBuffer struct {
	mu      sync.Mutex
	entries []replayEntry
}

func newReplayBuffer() *replayBuffer { return &replayBuffer{} }

func (b *replayBuffer) add(at time.Time, f types.PushFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, replayEntry{at, f})
	cutoff := at.Add(-config.PushReplayWindow)
	i := 0
	for i < len(b.entries) && b.entries[i].at.Before(cutoff) {
		i++
	}
	b.entries = b.entries[i:]
}

func (b *replayBuffer) since(cutoff time.Time) []types.PushFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.PushFrame, 0, len(b.entries))
	for _, e := range b.entries {
		if e.at.After(cutoff) {
			out = append(out, e.frame)
		}
	}
	return out
}
