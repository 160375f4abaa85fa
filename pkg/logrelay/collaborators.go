package logrelay

import (
	"context"

	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
)

// SecurityGuard decides whether a sender or a message must be stopped.
// Both methods are called synchronously from Parse and must not block.
type SecurityGuard interface {
	IsBanned(sender string) bool

	// CheckMaliciousPattern returns nil when message is acceptable.
	CheckMaliciousPattern(message, sender string) *event.Incident
}

// Sink receives every event the relay produces.
type Sink interface {
	Deliver(ctx context.Context, ev event.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev event.Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, ev event.Event) error {
	return f(ctx, ev)
}

// LineHandler receives each complete line read by a FileTailer.
type LineHandler func(ctx context.Context, line string) error

// SourceHandler receives each line read by a MultiSourceTailer together
// with the ID of the source it came from.
type SourceHandler func(ctx context.Context, line, sourceID string) error
