package logrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/logrelay/logrelay-go/internal/sanitize"
	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/metrics"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

// SecurityEmoji is attached to synthesized security alerts.
const SecurityEmoji = "🚨"

// compiledPattern pairs a definition with its matcher.
type compiledPattern struct {
	def     pattern.Definition
	kind    event.Kind
	matcher matcher.Matcher
}

// table is an immutable compiled pattern set. Parse loads it once per call.
type table struct {
	version  uint64 // store version it was built from
	patterns []compiledPattern
}

// EventParser turns log lines into sanitized events.
//
// The compiled pattern table is published through an atomic pointer, so
// Parse never blocks on Reload and a Parse in flight finishes with the table
// it started with.
type EventParser struct {
	store *pattern.Store
	cfg   config
	log   *slog.Logger

	table   atomic.Pointer[table]
	warnLim *rate.Limiter
}

// NewEventParser compiles the enabled patterns of store.
func NewEventParser(store *pattern.Store, opts ...Option) (*EventParser, error) {
	if store == nil {
		return nil, ErrNoPatterns
	}
	cfg := applyOptions(opts)

	p := &EventParser{
		store:   store,
		cfg:     *cfg,
		log:     cfg.logger,
		warnLim: rate.NewLimiter(rate.Every(cfg.warnInterval), 1),
	}
	p.publish(p.compile())
	return p, nil
}

// Reload recompiles the table from the store's current definitions and swaps
// it in. Definitions that fail to compile with this parser's engine are
// skipped with a warning.
func (p *EventParser) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := p.compile()
	p.publish(t)
	p.log.Info("pattern table reloaded", "patterns", len(t.patterns), "version", t.version)
	return nil
}

func (p *EventParser) compile() *table {
	// Read the version first: if a store reload lands in between, the table
	// is labeled with the older version and the next Reload rebuilds it.
	version := p.store.Version()
	defs := p.store.Patterns(true)

	t := &table{version: version, patterns: make([]compiledPattern, 0, len(defs))}
	for _, d := range defs {
		m, err := p.cfg.compiler.Compile(d.Regex)
		if err != nil {
			p.log.Warn("pattern skipped", "pattern", d.Name, "error", err)
			continue
		}
		t.patterns = append(t.patterns, compiledPattern{
			def:     d,
			kind:    event.ParseKind(d.Type),
			matcher: m,
		})
	}
	return t
}

func (p *EventParser) publish(t *table) {
	p.table.Store(t)
	p.cfg.metrics.SetPatterns(len(t.patterns))
}

// Len returns the number of patterns in the active table.
func (p *EventParser) Len() int {
	return len(p.table.Load().patterns)
}

// Version returns the store version the active table was built from.
func (p *EventParser) Version() uint64 {
	return p.table.Load().version
}

// Parse matches line against the active table and returns the resulting
// event, or nil when the line is empty, too long, unmatched, or dropped by
// the security guard. sourceID is copied into Event.Source.
func (p *EventParser) Parse(ctx context.Context, line, sourceID string) *event.Event {
	if len(line) > p.cfg.maxLineLength {
		p.cfg.metrics.Dropped(metrics.ReasonTooLong)
		p.log.Debug("line too long", "source", sourceID, "bytes", len(line))
		return nil
	}
	raw := strings.TrimSpace(line)
	if raw == "" {
		p.cfg.metrics.Dropped(metrics.ReasonEmpty)
		return nil
	}

	t := p.table.Load()
	for i := range t.patterns {
		if ctx.Err() != nil {
			return nil
		}
		cp := &t.patterns[i]

		groups, err := cp.matcher.FindStringSubmatch(raw)
		if err != nil {
			p.matchFailed(cp, sourceID, err)
			continue
		}
		if groups == nil {
			continue
		}
		return p.build(cp, groups, raw, sourceID)
	}

	p.cfg.metrics.Dropped(metrics.ReasonNoMatch)
	return nil
}

func (p *EventParser) matchFailed(cp *compiledPattern, sourceID string, err error) {
	if errors.Is(err, matcher.ErrMatchTimeout) {
		p.cfg.metrics.MatchTimeout(cp.def.Name)
	}
	if p.warnLim.Allow() {
		p.log.Warn("pattern match failed; treating as no match",
			"pattern", cp.def.Name, "source", sourceID, "error", err)
	}
}

// fields holds the raw captures of one match.
type fields struct {
	sender, message       string
	hasSender, hasMessage bool
}

// extract applies the capture-group convention: with two or more groups,
// group 1 is the sender and group 2 the message; a single group is the
// sender, except for server events where it is the message.
func extract(kind event.Kind, groups []string) fields {
	var f fields
	switch n := len(groups) - 1; {
	case n >= 2:
		f.sender, f.message = groups[1], groups[2]
	case n == 1 && kind == event.Server:
		f.message = groups[1]
	case n == 1:
		f.sender = groups[1]
	}
	f.hasSender = f.sender != ""
	f.hasMessage = f.message != ""
	return f
}

func (p *EventParser) build(cp *compiledPattern, groups []string, raw, sourceID string) *event.Event {
	f := extract(cp.kind, groups)
	sender := sanitize.Sender(f.sender)
	message := sanitize.Message(f.message)

	mentions := sanitize.Mentions(f.message)
	ev := &event.Event{
		Kind:    cp.kind,
		Sender:  sender,
		Message: message,
		Raw:     raw,
		Emoji:   cp.def.Emoji,
		Display: display(cp.def.Template, f, sender, message, raw),
		Source:  sourceID,
		Pattern: cp.def.Name,
		Time:    p.cfg.now(),
		Metadata: event.Metadata{
			Channel:      cp.def.Channel,
			Mentions:     mentions,
			MentionClass: string(sanitize.Classify(mentions)),
		},
	}

	if p.cfg.guard != nil && f.hasSender {
		if p.cfg.guard.IsBanned(f.sender) {
			p.cfg.metrics.Dropped(metrics.ReasonBanned)
			p.log.Debug("line from banned sender dropped", "source", sourceID, "pattern", cp.def.Name)
			return nil
		}
		if inc := p.cfg.guard.CheckMaliciousPattern(f.message, f.sender); inc != nil {
			alert := p.securityAlert(ev, inc)
			p.log.Warn("security alert",
				"source", sourceID,
				"pattern", cp.def.Name,
				"severity", alert.Metadata.Incident.Severity,
				"incident", alert.Metadata.Incident.ID)
			p.cfg.metrics.EventEmitted(string(alert.Kind))
			return alert
		}
	}

	p.cfg.metrics.EventEmitted(string(ev.Kind))
	return ev
}

// display renders the template with sanitized values. An empty template
// composes whichever fields exist, falling back to the sanitized raw line.
func display(tmpl string, f fields, sender, message, raw string) string {
	if tmpl != "" {
		return pattern.Render(tmpl, sender, message)
	}
	switch {
	case f.hasSender && f.hasMessage:
		return sender + ": " + message
	case f.hasSender:
		return sender
	case f.hasMessage:
		return message
	default:
		return sanitize.Message(raw)
	}
}

// securityAlert replaces ev with an alert carrying the incident. The
// original event is never delivered.
func (p *EventParser) securityAlert(ev *event.Event, inc *event.Incident) *event.Event {
	incident := *inc
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = ev.Time
	}
	incident.Fragment = sanitize.Message(incident.Fragment)
	incident.Description = sanitize.Message(incident.Description)

	severity := incident.Severity
	if severity == "" {
		severity = "unknown"
	}

	summary := fmt.Sprintf("Security alert [%s]: %s | sender: %s | message: %s",
		sanitize.Field(severity, 32), incident.Description, ev.Sender, ev.Message)
	if incident.AutoBanned {
		summary += " | sender auto-banned"
	}

	return &event.Event{
		Kind:    event.SecurityAlert,
		Sender:  ev.Sender,
		Message: ev.Message,
		Raw:     ev.Raw,
		Emoji:   SecurityEmoji,
		Display: summary,
		Source:  ev.Source,
		Pattern: ev.Pattern,
		Time:    ev.Time,
		Metadata: event.Metadata{
			Channel:      event.SecurityChannel,
			Mentions:     ev.Metadata.Mentions,
			MentionClass: ev.Metadata.MentionClass,
			Incident:     &incident,
		},
	}
}
