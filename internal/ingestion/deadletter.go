package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeadLetter is one payload that failed parsing or validation.
type DeadLetter struct {
	Transport string
	PeerID    string
	Payload   []byte
	Reason    string
	At        time.Time
}

// DeadLetterSink records payloads the pipeline could not accept.
type DeadLetterSink interface {
	Record(ctx context.Context, dl DeadLetter)
}

// LogSink writes dead letters to the structured logger. It is the
// default sink; a durable sink (e.g. a dead-letter table) can be
// swapped in by implementing DeadLetterSink.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a dead-letter sink that logs each entry.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "ingestion_deadletter")}
}

func (s *LogSink) Record(ctx context.Context, dl DeadLetter) {
	s.logger.Warn("dead-lettered payload",
		"transport", dl.Transport,
		"peer_id", dl.PeerID,
		"reason", dl.Reason,
		"payload_bytes", len(dl.Payload),
	)
}

// RingSink keeps the last N dead letters in memory, for tests and for
// an operator-facing recent-failures view.
type RingSink struct {
	mu     sync.Mutex
	items  []DeadLetter
	cap    int
	logger *slog.Logger
}

// NewRingSink builds a bounded in-memory sink that also logs each entry.
func NewRingSink(capacity int, logger *slog.Logger) *RingSink {
	return &RingSink{cap: capacity, logger: logger.With("component", "ingestion_deadletter")}
}

func (s *RingSink) Record(ctx context.Context, dl DeadLetter) {
	s.logger.Warn("dead-lettered payload", "transport", dl.Transport, "peer_id", dl.PeerID, "reason", dl.Reason)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, dl)
	if len(s.items) > s.cap {
		s.items = s.items[len(s.items)-s.cap:]
	}
}

// Recent returns a snapshot of the sink's retained dead letters.
func (s *RingSink) Recent() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetter, len(s.items))
	copy(out, s.items)
	return out
}
