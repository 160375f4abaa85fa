package logrelay

import (
	"io"
	"log/slog"
	"time"

	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/metrics"
)

const (
	// MaxLineLength is the longest line, in bytes, offered to any pattern.
	MaxLineLength = 4096

	// MaxBufferedLine is the most data held for a line without a newline.
	// Anything longer is discarded up to the next newline.
	MaxBufferedLine = 64 * 1024

	// DefaultPollInterval is how often a tailer checks for new data,
	// rotation, or a missing file.
	DefaultPollInterval = 500 * time.Millisecond

	// RestartDelay is the pause between Stop and Start in Restart.
	RestartDelay = 500 * time.Millisecond

	// previewLength bounds line excerpts in log output.
	previewLength = 80
)

// Option configures the parser, the tailers and the relay. Options that do
// not apply to a component are ignored by it.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	metrics         *metrics.Metrics
	guard           SecurityGuard
	compiler        matcher.Compiler
	maxLineLength   int
	pollInterval    time.Duration
	maxBufferedLine int
	restartDelay    time.Duration
	warnInterval    time.Duration
	now             func() time.Time
}

// discardLogger returns a logger that discards all output.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func defaultConfig() *config {
	return &config{
		logger:          discardLogger,
		maxLineLength:   MaxLineLength,
		pollInterval:    DefaultPollInterval,
		maxBufferedLine: MaxBufferedLine,
		restartDelay:    RestartDelay,
		warnInterval:    10 * time.Second,
		now:             time.Now,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithLogger sets a custom logger.
// If logger is nil, logging is disabled (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records counters to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithGuard sets the security guard consulted for lines with a sender.
func WithGuard(g SecurityGuard) Option {
	return func(c *config) {
		c.guard = g
	}
}

// WithCompiler selects the regex engine used by the parser.
// Default: matcher.EngineLinear.
func WithCompiler(comp matcher.Compiler) Option {
	return func(c *config) {
		c.compiler = comp
	}
}

// WithMaxLineLength overrides MaxLineLength. Values <= 0 are ignored.
func WithMaxLineLength(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLineLength = n
		}
	}
}

// WithPollInterval sets how often tailers check the file.
// Default: 500ms. Values <= 0 are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxBufferedLine overrides MaxBufferedLine. Values <= 0 are ignored.
func WithMaxBufferedLine(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBufferedLine = n
		}
	}
}

// WithRestartDelay sets the pause used by Restart. Negative values are ignored.
func WithRestartDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.restartDelay = d
		}
	}
}

// WithWarnInterval sets the minimum gap between repeated match-timeout
// warnings. Default: 10s.
func WithWarnInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.warnInterval = d
		}
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
