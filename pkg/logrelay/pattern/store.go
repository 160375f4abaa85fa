package pattern

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
)

// ErrNoSources is returned by Reload before any source has been loaded.
var ErrNoSources = errors.New("no pattern sources loaded")

// Option configures a Store.
type Option func(*Store)

// WithCompiler sets the compiler patterns are validated against.
// It must match the engine used for matching.
func WithCompiler(c matcher.Compiler) Option {
	return func(s *Store) {
		s.compiler = c
	}
}

// WithLogger sets the logger for load warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLimits overrides the per-document limits.
func WithLimits(l Limits) Option {
	return func(s *Store) {
		s.limits = l
	}
}

// Store holds the validated pattern set. It is safe for concurrent use.
type Store struct {
	compiler matcher.Compiler
	limits   Limits
	logger   *slog.Logger

	// loadMu serializes Load and Reload; mu guards the published set.
	loadMu  sync.Mutex
	mu      sync.RWMutex
	defs    []Definition
	sources []Source
	version uint64
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load validates sources and appends their definitions to the store. Names
// already present win over later duplicates. It returns the number of
// definitions added.
//
// An error is returned only when every source was rejected; it joins the
// per-document errors.
func (s *Store) Load(ctx context.Context, sources ...Source) (int, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	base := s.defs
	s.mu.RUnlock()

	defs, added, err := s.build(ctx, base, sources)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.defs = defs
	s.sources = append(s.sources, sources...)
	s.version++
	s.mu.Unlock()
	return added, nil
}

// Reload rebuilds the set from every source given to Load so far and swaps
// it in. Readers see either the old set or the new one.
// On error the current set is kept.
func (s *Store) Reload(ctx context.Context) (int, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	sources := slices.Clone(s.sources)
	s.mu.RUnlock()

	if len(sources) == 0 {
		return 0, ErrNoSources
	}

	defs, added, err := s.build(ctx, nil, sources)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.defs = defs
	s.version++
	s.mu.Unlock()
	return added, nil
}

// build validates sources on top of base and returns the merged,
// priority-sorted set together with the number of definitions added.
func (s *Store) build(ctx context.Context, base []Definition, sources []Source) ([]Definition, int, error) {
	defs := slices.Clone(base)
	names := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		names[d.Name] = struct{}{}
	}

	var errs []error
	added := 0
	for _, src := range sources {
		doc, err := Read(ctx, src, s.compiler, s.limits)
		if err != nil {
			s.logger.Warn("pattern document rejected", "source", src.Name(), "error", err)
			errs = append(errs, err)
			continue
		}

		for _, p := range doc.Problems {
			if p.Dropped {
				s.logger.Warn("pattern dropped", "source", p.Source, "pattern", p.Name, "error", p)
			} else {
				s.logger.Warn("pattern field ignored", "source", p.Source, "pattern", p.Name, "error", p)
			}
		}

		for _, d := range doc.Definitions {
			if _, dup := names[d.Name]; dup {
				s.logger.Warn("pattern dropped", "source", d.Source, "pattern", d.Name,
					"error", "name already defined by an earlier document")
				continue
			}
			names[d.Name] = struct{}{}
			defs = append(defs, d)
			added++
		}
		s.logger.Debug("pattern document loaded", "source", doc.Source, "patterns", len(doc.Definitions))
	}

	if len(sources) > 0 && len(errs) == len(sources) {
		return nil, 0, errors.Join(errs...)
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Priority < defs[j].Priority
	})
	return defs, added, nil
}

// Patterns returns a copy of the current set in priority order.
func (s *Store) Patterns(enabledOnly bool) []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Definition, 0, len(s.defs))
	for _, d := range s.defs {
		if enabledOnly && !d.Enabled {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Len returns the number of loaded definitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

// Version increments on every successful Load or Reload.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
