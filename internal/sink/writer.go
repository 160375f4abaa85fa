// Package sink delivers events to stdout, Discord and OpenTelemetry.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
)

// Output formats for Writer.
const (
	FormatJSONL  = "jsonl"
	FormatPretty = "pretty"
)

// ValidFormats lists all valid output formats.
var ValidFormats = map[string]bool{
	FormatJSONL:  true,
	FormatPretty: true,
}

// Writer writes one event per line to an io.Writer.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	format string
}

// NewWriter returns a Writer for format.
func NewWriter(out io.Writer, format string) (*Writer, error) {
	if !ValidFormats[format] {
		return nil, fmt.Errorf("unknown format: %s", format)
	}
	return &Writer{out: out, format: format}, nil
}

// Deliver writes ev. Writes are serialized.
func (w *Writer) Deliver(_ context.Context, ev event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.format == FormatPretty {
		return WritePretty(ev, w.out)
	}
	return WriteJSON(ev, w.out)
}

// WriteJSON writes an event as JSON Lines format.
func WriteJSON(ev event.Event, out io.Writer) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// WritePretty writes an event in human-readable format.
func WritePretty(ev event.Event, out io.Writer) error {
	ts := ev.Time.Format("15:04:05")

	var err error
	switch ev.Kind {
	case event.Join:
		_, err = fmt.Fprintf(out, "[%s] + %s\n", ts, ev.Display)
	case event.Leave:
		_, err = fmt.Fprintf(out, "[%s] - %s\n", ts, ev.Display)
	case event.Chat, event.Whisper:
		_, err = fmt.Fprintf(out, "[%s] > %s\n", ts, ev.Display)
	case event.SecurityAlert:
		_, err = fmt.Fprintf(out, "[%s] ! %s %s\n", ts, ev.Display, formatData(incidentData(ev.Metadata.Incident)))
	default:
		_, err = fmt.Fprintf(out, "[%s] * %s: %s\n", ts, ev.Kind, ev.Display)
	}
	return err
}

func incidentData(inc *event.Incident) map[string]string {
	if inc == nil {
		return nil
	}
	return map[string]string{
		"id":       inc.ID,
		"severity": inc.Severity,
		"fragment": inc.Fragment,
	}
}

// formatData formats a map as sorted key=value pairs.
// Values are quoted if they contain spaces, equals signs, quotes, or control characters.
func formatData(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(data))
	for _, k := range keys {
		parts = append(parts, quoteIfNeeded(k)+"="+quoteIfNeeded(data[k]))
	}
	return strings.Join(parts, " ")
}

// quoteIfNeeded quotes v if it contains special or control characters.
func quoteIfNeeded(v string) string {
	if v == "" {
		return `""`
	}

	needsQuote := strings.ContainsFunc(v, func(c rune) bool {
		return c == ' ' || c == '=' || c == '"' || c == '\\' || c < 0x20 || c == 0x7F
	})
	if !needsQuote {
		return v
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range v {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7F:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteRune(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
