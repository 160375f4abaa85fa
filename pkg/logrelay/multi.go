package logrelay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logrelay/logrelay-go/internal/sanitize"
)

// Source is one configured log file.
type Source struct {
	// ID identifies the source in events and logs. Defaults to Path.
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// SourceStatus is a snapshot of one source.
type SourceStatus struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
}

// MultiSourceTailer runs one FileTailer per source and forwards every line
// with its source ID to a shared handler. Sources are independent: a slow
// handler call on one source does not delay the others.
type MultiSourceTailer struct {
	sources []Source
	handler SourceHandler
	opts    []Option
	cfg     config
	log     *slog.Logger

	mu      sync.Mutex
	tailers []*FileTailer
}

// NewMultiSourceTailer validates sources. It returns ErrNoSources for an
// empty list and a *ConfigError for a source with a blank path, a path
// containing NUL, or a duplicate ID. Paths are not checked for existence.
func NewMultiSourceTailer(sources []Source, handler SourceHandler, opts ...Option) (*MultiSourceTailer, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if handler == nil {
		return nil, &ConfigError{Index: -1, Message: "handler is required"}
	}

	normalized := make([]Source, len(sources))
	seen := make(map[string]int, len(sources))
	for i, src := range sources {
		if strings.TrimSpace(src.Path) == "" {
			return nil, &ConfigError{Index: i, ID: src.ID, Message: "path is required"}
		}
		if strings.ContainsRune(src.Path, 0) {
			return nil, &ConfigError{Index: i, ID: src.ID, Message: "path contains NUL byte"}
		}
		if src.ID == "" {
			src.ID = src.Path
		}
		if prev, dup := seen[src.ID]; dup {
			return nil, &ConfigError{
				Index:   i,
				ID:      src.ID,
				Message: fmt.Sprintf("duplicate id (previously defined at source[%d])", prev),
			}
		}
		seen[src.ID] = i
		normalized[i] = src
	}

	cfg := applyOptions(opts)
	return &MultiSourceTailer{
		sources: normalized,
		handler: handler,
		opts:    opts,
		cfg:     *cfg,
		log:     cfg.logger,
	}, nil
}

// Sources returns the normalized source list.
func (m *MultiSourceTailer) Sources() []Source {
	out := make([]Source, len(m.sources))
	copy(out, m.sources)
	return out
}

// Start starts every tailer concurrently. If any fails to start, those that
// did start are stopped and the first error is returned.
// Calling Start while any tailer is running is a no-op. Once every tailer
// has ended, for example because ctx was cancelled, Start begins afresh.
func (m *MultiSourceTailer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tailers != nil {
		for _, ft := range m.tailers {
			if ft.Running() {
				return nil
			}
		}
		stopAll(m.tailers)
		m.tailers = nil
	}

	tailers := make([]*FileTailer, len(m.sources))
	for i, src := range m.sources {
		tailers[i] = m.newTailer(src)
	}

	var g errgroup.Group
	for i := range tailers {
		ft := tailers[i]
		g.Go(func() error {
			if err := ft.Start(ctx); err != nil {
				return &SourceError{Source: ft.sourceID, Op: "start", Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Error("source failed to start; stopping all", "error", err)
		stopAll(tailers)
		return err
	}

	m.tailers = tailers
	m.log.Info("tailing sources", "count", len(tailers))
	return nil
}

// newTailer binds a FileTailer to src.
func (m *MultiSourceTailer) newTailer(src Source) *FileTailer {
	id := src.ID
	log := m.log.With("source", id)

	forward := func(ctx context.Context, line string) error {
		// Errors and panics are contained here so one source's handler
		// failure is attributed to that source alone.
		defer func() {
			if r := recover(); r != nil {
				m.cfg.metrics.CallbackError(id)
				log.Error("handler panicked", "panic", r, "preview", sanitize.Preview(line, previewLength))
			}
		}()
		if err := m.handler(ctx, line, id); err != nil {
			m.cfg.metrics.CallbackError(id)
			log.Warn("handler failed", "error", err, "preview", sanitize.Preview(line, previewLength))
		}
		return nil
	}

	opts := append([]Option{}, m.opts...)
	opts = append(opts, WithLogger(log))
	ft := NewFileTailer(src.Path, forward, opts...)
	ft.sourceID = id
	return ft
}

// Stop stops every tailer concurrently and waits for all of them.
// It never fails; problems are logged per source.
func (m *MultiSourceTailer) Stop() {
	m.mu.Lock()
	tailers := m.tailers
	m.tailers = nil
	m.mu.Unlock()

	if tailers == nil {
		return
	}
	stopAll(tailers)
	m.log.Info("stopped all sources", "count", len(tailers))
}

func stopAll(tailers []*FileTailer) {
	var wg sync.WaitGroup
	for _, ft := range tailers {
		wg.Add(1)
		go func(ft *FileTailer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					ft.log.Error("stop panicked", "panic", r)
				}
			}()
			ft.Stop()
		}(ft)
	}
	wg.Wait()
}

// Restart stops all sources, pauses briefly, then starts them again.
func (m *MultiSourceTailer) Restart(ctx context.Context) error {
	m.Stop()

	timer := time.NewTimer(m.cfg.restartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return m.Start(ctx)
}

// Status reports every configured source, running or not.
func (m *MultiSourceTailer) Status() []SourceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SourceStatus, len(m.sources))
	for i, src := range m.sources {
		out[i] = SourceStatus{ID: src.ID, Path: src.Path}
		if m.tailers != nil {
			out[i].Running = m.tailers[i].Running()
		}
	}
	return out
}
