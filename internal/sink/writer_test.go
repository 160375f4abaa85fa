package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
)

var testTime = time.Date(2024, 1, 15, 12, 34, 56, 0, time.UTC)

func chatEvent() event.Event {
	return event.Event{
		Kind:    event.Chat,
		Sender:  "Steve",
		Message: "hello",
		Raw:     "[CHAT] Steve: hello",
		Display: "Steve: hello",
		Source:  "game",
		Pattern: "chat",
		Time:    testTime,
	}
}

func TestNewWriter_UnknownFormat(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestWriter_JSONL(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatJSONL)
	require.NoError(t, err)

	require.NoError(t, w.Deliver(context.Background(), chatEvent()))
	require.NoError(t, w.Deliver(context.Background(), chatEvent()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "chat", got["kind"])
	assert.Equal(t, "Steve", got["sender"])
	assert.Equal(t, "game", got["source"])
	assert.Equal(t, "2024-01-15T12:34:56Z", got["time"])
}

func TestWritePretty(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
		want string
	}{
		{
			name: "chat",
			ev:   chatEvent(),
			want: "[12:34:56] > Steve: hello\n",
		},
		{
			name: "join",
			ev:   event.Event{Kind: event.Join, Display: "Steve joined", Time: testTime},
			want: "[12:34:56] + Steve joined\n",
		},
		{
			name: "leave",
			ev:   event.Event{Kind: event.Leave, Display: "Steve left", Time: testTime},
			want: "[12:34:56] - Steve left\n",
		},
		{
			name: "other",
			ev:   event.Event{Kind: event.Server, Display: "restarting", Time: testTime},
			want: "[12:34:56] * server: restarting\n",
		},
		{
			name: "security alert",
			ev: event.Event{
				Kind:    event.SecurityAlert,
				Display: "Security alert [high]: spam",
				Time:    testTime,
				Metadata: event.Metadata{Incident: &event.Incident{
					ID:       "abc",
					Severity: "high",
					Fragment: "@here @here",
				}},
			},
			want: "[12:34:56] ! Security alert [high]: spam fragment=\"@here @here\" id=abc severity=high\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePretty(tt.ev, &buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", `""`},
		{"plain", "plain"},
		{"has space", `"has space"`},
		{"a=b", `"a=b"`},
		{`say "hi"`, `"say \"hi\""`},
		{`back\slash`, `"back\\slash"`},
		{"line\nbreak", `"line\nbreak"`},
		{"tab\there", `"tab\there"`},
		{"bell\x07", `"bell\x07"`},
		{"del\x7f", `"del\x7f"`},
		{"日本語", "日本語"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quoteIfNeeded(tt.in), "input %q", tt.in)
	}
}

func TestFormatData_Sorted(t *testing.T) {
	assert.Equal(t, "", formatData(nil))
	assert.Equal(t, "a=1 b=\"x y\" c=3", formatData(map[string]string{"c": "3", "a": "1", "b": "x y"}))
}
