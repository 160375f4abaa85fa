// Package metrics exposes relay counters to Prometheus.
//
// All methods are safe to call on a nil *Metrics, so components can take
// an optional collector without checking for it.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logrelay"

// Drop reasons recorded by Dropped.
const (
	ReasonEmpty    = "empty"
	ReasonTooLong  = "too_long"
	ReasonNoMatch  = "no_match"
	ReasonBanned   = "banned"
	ReasonOverflow = "buffer_overflow"
)

// Metrics holds the relay collectors.
type Metrics struct {
	linesRead      *prometheus.CounterVec
	events         *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	matchTimeouts  *prometheus.CounterVec
	rotations      *prometheus.CounterVec
	callbackErrors *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	patterns       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		linesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Complete lines read from each source.",
		}, []string{"source"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events produced by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dropped_total",
			Help:      "Lines that produced no event, by reason.",
		}, []string{"reason"}),
		matchTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_timeouts_total",
			Help:      "Regex matches abandoned after exceeding the time budget.",
		}, []string{"pattern"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "File reopens after rotation, truncation or disappearance.",
		}, []string{"source"}),
		callbackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_errors_total",
			Help:      "Line handler errors and panics by source.",
		}, []string{"source"}),
		deliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Failed event deliveries by sink.",
		}, []string{"sink"}),
		patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns_loaded",
			Help:      "Patterns in the active table.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.linesRead,
			m.events,
			m.dropped,
			m.matchTimeouts,
			m.rotations,
			m.callbackErrors,
			m.deliveryErrors,
			m.patterns,
		)
	}
	return m
}

// LineRead counts a line delivered by the tailer for source.
func (m *Metrics) LineRead(source string) {
	if m == nil {
		return
	}
	m.linesRead.WithLabelValues(source).Inc()
}

// EventEmitted counts an event of kind handed to the sinks.
func (m *Metrics) EventEmitted(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// Dropped counts a line or event discarded for reason.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// MatchTimeout counts a match attempt on pattern that hit its time limit.
func (m *Metrics) MatchTimeout(pattern string) {
	if m == nil {
		return
	}
	m.matchTimeouts.WithLabelValues(pattern).Inc()
}

// Rotation counts a log file replacement detected on source.
func (m *Metrics) Rotation(source string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(source).Inc()
}

// CallbackError counts a handler error or panic attributed to source.
func (m *Metrics) CallbackError(source string) {
	if m == nil {
		return
	}
	m.callbackErrors.WithLabelValues(source).Inc()
}

// DeliveryFailed counts an event that sink could not deliver.
func (m *Metrics) DeliveryFailed(sink string) {
	if m == nil {
		return
	}
	m.deliveryErrors.WithLabelValues(sink).Inc()
}

// SetPatterns records the size of the active pattern table.
func (m *Metrics) SetPatterns(n int) {
	if m == nil {
		return
	}
	m.patterns.Set(float64(n))
}

// Listener serves /metrics for a gatherer.
type Listener struct {
	server *http.Server
	logger *slog.Logger
}

// Listen starts an HTTP server on address in the background.
func Listen(address string, g prometheus.Gatherer, logger *slog.Logger) *Listener {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	l := &Listener{
		server: &http.Server{
			Addr:              address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
	go func() {
		logger.Info("metrics listener started", "address", address)
		if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	return l
}

// Close shuts the server down, waiting for in-flight scrapes.
func (l *Listener) Close(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}
