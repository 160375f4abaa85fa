package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/logrelay/logrelay-go/pkg/logrelay"
	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
	"github.com/logrelay/logrelay-go/pkg/logrelay/metrics"
)

// Named is a sink with a name for logs and metrics.
type Named struct {
	Name string
	Sink logrelay.Sink
	// Kinds limits delivery to these event kinds. Empty or "all" passes
	// everything.
	Kinds []string
}

func (n Named) accepts(k event.Kind) bool {
	if len(n.Kinds) == 0 {
		return true
	}
	for _, want := range n.Kinds {
		if want == "all" || event.Kind(strings.ToLower(want)) == k {
			return true
		}
	}
	return false
}

// Fanout delivers every event to each sink in turn. A failing sink does
// not prevent delivery to the others.
type Fanout struct {
	sinks   []Named
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewFanout returns a Fanout. Nil logger and metrics are allowed.
func NewFanout(log *slog.Logger, m *metrics.Metrics, sinks ...Named) *Fanout {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fanout{sinks: sinks, log: log, metrics: m}
}

// Deliver implements logrelay.Sink. The returned error joins every sink
// failure.
func (f *Fanout) Deliver(ctx context.Context, ev event.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.accepts(ev.Kind) {
			continue
		}
		if err := s.Sink.Deliver(ctx, ev); err != nil {
			f.metrics.DeliveryFailed(s.Name)
			f.log.Warn("delivery failed", "sink", s.Name, "kind", ev.Kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}
