package logrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

// Relay wires sources through the parser into a sink.
type Relay struct {
	store  *pattern.Store
	parser *EventParser
	tailer *MultiSourceTailer
	sink   Sink
	log    *slog.Logger
}

// NewRelay builds the parser and the multi-source tailer. The store must
// already be loaded.
func NewRelay(store *pattern.Store, sources []Source, sink Sink, opts ...Option) (*Relay, error) {
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	parser, err := NewEventParser(store, opts...)
	if err != nil {
		return nil, err
	}

	r := &Relay{
		store:  store,
		parser: parser,
		sink:   sink,
		log:    applyOptions(opts).logger,
	}
	r.tailer, err = NewMultiSourceTailer(sources, r.handle, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relay) handle(ctx context.Context, line, sourceID string) error {
	ev := r.parser.Parse(ctx, line, sourceID)
	if ev == nil {
		return nil
	}
	if err := r.sink.Deliver(ctx, *ev); err != nil {
		return fmt.Errorf("deliver %s event: %w", ev.Kind, err)
	}
	return nil
}

// Start begins tailing every source.
func (r *Relay) Start(ctx context.Context) error {
	r.log.Info("relay starting", "patterns", r.parser.Len(), "sources", len(r.tailer.sources))
	return r.tailer.Start(ctx)
}

// Stop stops every source.
func (r *Relay) Stop() {
	r.tailer.Stop()
}

// Reload re-reads the pattern documents and swaps in the new table. If no
// document loads, the current table stays active and the error is returned.
func (r *Relay) Reload(ctx context.Context) error {
	n, err := r.store.Reload(ctx)
	if err != nil {
		r.log.Error("pattern reload failed; keeping current table", "error", err)
		return err
	}
	if err := r.parser.Reload(ctx); err != nil {
		return err
	}
	r.log.Info("patterns reloaded", "loaded", n, "active", r.parser.Len())
	return nil
}

// Restart restarts every source.
func (r *Relay) Restart(ctx context.Context) error {
	return r.tailer.Restart(ctx)
}

// Status reports every source.
func (r *Relay) Status() []SourceStatus {
	return r.tailer.Status()
}

// Parser returns the relay's parser.
func (r *Relay) Parser() *EventParser {
	return r.parser
}
