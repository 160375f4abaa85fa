package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logrelay/logrelay-go/pkg/logrelay"
	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
	"github.com/logrelay/logrelay-go/pkg/logrelay/metrics"
)

type recordingSink struct {
	kinds []event.Kind
	err   error
}

func (r *recordingSink) Deliver(_ context.Context, ev event.Event) error {
	r.kinds = append(r.kinds, ev.Kind)
	return r.err
}

func TestFanout_IsolatesFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	broken := &recordingSink{err: errors.New("down")}
	healthy := &recordingSink{}
	f := NewFanout(nil, m,
		Named{Name: "broken", Sink: broken},
		Named{Name: "healthy", Sink: healthy},
	)
	assert.Equal(t, 2, f.Len())

	err := f.Deliver(context.Background(), chatEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: down")
	assert.Equal(t, []event.Kind{event.Chat}, healthy.kinds)
	expected := `
# HELP logrelay_delivery_errors_total Failed event deliveries by sink.
# TYPE logrelay_delivery_errors_total counter
logrelay_delivery_errors_total{sink="broken"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "logrelay_delivery_errors_total"))
}

func TestFanout_KindFilter(t *testing.T) {
	chatOnly := &recordingSink{}
	all := &recordingSink{}
	alerts := &recordingSink{}
	f := NewFanout(nil, nil,
		Named{Name: "chat", Sink: chatOnly, Kinds: []string{"chat"}},
		Named{Name: "all", Sink: all, Kinds: []string{"all"}},
		Named{Name: "alerts", Sink: alerts, Kinds: []string{"SECURITY_ALERT"}},
	)

	ctx := context.Background()
	require.NoError(t, f.Deliver(ctx, chatEvent()))
	require.NoError(t, f.Deliver(ctx, event.Event{Kind: event.Join}))
	require.NoError(t, f.Deliver(ctx, event.Event{Kind: event.SecurityAlert}))

	assert.Equal(t, []event.Kind{event.Chat}, chatOnly.kinds)
	assert.Equal(t, []event.Kind{event.Chat, event.Join, event.SecurityAlert}, all.kinds)
	assert.Equal(t, []event.Kind{event.SecurityAlert}, alerts.kinds)
}

func TestFanout_SinkFunc(t *testing.T) {
	var got string
	f := NewFanout(nil, nil, Named{Name: "fn", Sink: logrelay.SinkFunc(func(_ context.Context, ev event.Event) error {
		got = ev.Display
		return nil
	})})
	require.NoError(t, f.Deliver(context.Background(), chatEvent()))
	assert.Equal(t, "Steve: hello", got)
}
