package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LineRead("game")
	m.LineRead("game")
	m.LineRead("chat")
	m.EventEmitted("chat")
	m.Dropped(ReasonNoMatch)
	m.MatchTimeout("slow")
	m.Rotation("game")
	m.CallbackError("chat")
	m.DeliveryFailed("discord")
	m.SetPatterns(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesRead.WithLabelValues("game")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesRead.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues(ReasonNoMatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.matchTimeouts.WithLabelValues("slow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rotations.WithLabelValues("game")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbackErrors.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveryErrors.WithLabelValues("discord")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.patterns))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LineRead("x")
		m.EventEmitted("chat")
		m.Dropped(ReasonBanned)
		m.MatchTimeout("p")
		m.Rotation("x")
		m.CallbackError("x")
		m.DeliveryFailed("s")
		m.SetPatterns(1)
	})
}

func TestNew_NilRegisterer(t *testing.T) {
	m := New(nil)
	m.LineRead("x")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesRead.WithLabelValues("x")))
}
