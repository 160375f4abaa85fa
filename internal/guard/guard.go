// Package guard is the built-in security guard: a glob ban list plus regex
// rules for malicious chat content.
package guard

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
)

// Severity levels used by rules.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severities = map[string]struct{}{
	SeverityLow:      {},
	SeverityMedium:   {},
	SeverityHigh:     {},
	SeverityCritical: {},
}

// Rule flags messages matching Pattern.
type Rule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	// AutoBan adds the sender to the ban list when the rule fires.
	AutoBan bool `yaml:"auto_ban"`
}

// Config is the guard's policy.
type Config struct {
	// Bans are case-insensitive glob patterns over sender names.
	Bans  []string `yaml:"bans"`
	Rules []Rule   `yaml:"rules"`
}

// DefaultRules is a small policy for common chat abuse.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "discord_token",
			Pattern:     `[MN][A-Za-z\d]{23,25}\.[\w-]{6}\.[\w-]{27,38}`,
			Severity:    SeverityCritical,
			Description: "possible Discord token leaked in chat",
		},
		{
			Name:        "invite_link",
			Pattern:     `(?i)(discord\.gg|discord(app)?\.com/invite)/[A-Za-z0-9-]+`,
			Severity:    SeverityMedium,
			Description: "server invite link",
		},
		{
			Name:        "mass_ping_spam",
			Pattern:     `(?i)(@(everyone|here)\W*){3,}`,
			Severity:    SeverityHigh,
			Description: "repeated mass mentions",
			AutoBan:     true,
		},
	}
}

type rule struct {
	Rule
	m matcher.Matcher
}

type ban struct {
	expr string
	g    glob.Glob
}

// Guard implements logrelay.SecurityGuard. It is safe for concurrent use.
type Guard struct {
	log *slog.Logger
	now func() time.Time

	rules []rule

	mu      sync.RWMutex
	bans    []ban
	dynamic map[string]struct{} // lowercased names banned at runtime
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger for ban and incident records.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithClock sets the clock used for incident timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// New compiles cfg. Rule patterns are compiled with comp; a zero Compiler
// uses the linear engine.
func New(cfg Config, comp matcher.Compiler, opts ...Option) (*Guard, error) {
	g := &Guard{
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		dynamic: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, expr := range cfg.Bans {
		if err := g.addBan(expr); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule%d", i)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("rule %q: duplicate name", r.Name)
		}
		seen[r.Name] = struct{}{}

		if r.Severity == "" {
			r.Severity = SeverityMedium
		}
		r.Severity = strings.ToLower(r.Severity)
		if _, ok := severities[r.Severity]; !ok {
			return nil, fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %q: pattern is required", r.Name)
		}
		m, err := comp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if r.Description == "" {
			r.Description = r.Name
		}
		g.rules = append(g.rules, rule{Rule: r, m: m})
	}
	return g, nil
}

func (g *Guard) addBan(expr string) error {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		return fmt.Errorf("ban: empty pattern")
	}
	compiled, err := glob.Compile(expr)
	if err != nil {
		return fmt.Errorf("ban %q: %w", expr, err)
	}
	g.mu.Lock()
	g.bans = append(g.bans, ban{expr: expr, g: compiled})
	g.mu.Unlock()
	return nil
}

// IsBanned reports whether sender matches the ban list. Matching ignores
// case and surrounding whitespace.
func (g *Guard) IsBanned(sender string) bool {
	name := strings.ToLower(strings.TrimSpace(sender))
	if name == "" {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.dynamic[name]; ok {
		return true
	}
	for _, b := range g.bans {
		if b.g.Match(name) {
			return true
		}
	}
	return false
}

// Ban adds sender to the runtime ban list.
func (g *Guard) Ban(sender string) {
	name := strings.ToLower(strings.TrimSpace(sender))
	if name == "" {
		return
	}
	g.mu.Lock()
	g.dynamic[name] = struct{}{}
	g.mu.Unlock()
	g.log.Info("sender banned", "sender", name)
}

// Unban removes sender from the runtime ban list. Glob bans are unaffected.
func (g *Guard) Unban(sender string) {
	g.mu.Lock()
	delete(g.dynamic, strings.ToLower(strings.TrimSpace(sender)))
	g.mu.Unlock()
}

// Bans lists the configured glob patterns followed by runtime bans.
func (g *Guard) Bans() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.bans)+len(g.dynamic))
	for _, b := range g.bans {
		out = append(out, b.expr)
	}
	for name := range g.dynamic {
		out = append(out, name)
	}
	return out
}

// CheckMaliciousPattern returns an incident for the first rule matching
// message, or nil. A rule whose match fails (for example on timeout) is
// skipped.
func (g *Guard) CheckMaliciousPattern(message, sender string) *event.Incident {
	if message == "" {
		return nil
	}
	for i := range g.rules {
		r := &g.rules[i]
		groups, err := r.m.FindStringSubmatch(message)
		if err != nil {
			g.log.Warn("guard rule failed", "rule", r.Name, "error", err)
			continue
		}
		if groups == nil {
			continue
		}

		inc := &event.Incident{
			ID:          uuid.NewString(),
			Severity:    r.Severity,
			Description: r.Description,
			Fragment:    groups[0],
			Timestamp:   g.now(),
		}
		if r.AutoBan && strings.TrimSpace(sender) != "" {
			g.Ban(sender)
			inc.AutoBanned = true
		}
		g.log.Warn("malicious content detected",
			"rule", r.Name, "severity", r.Severity, "auto_banned", inc.AutoBanned, "incident", inc.ID)
		return inc
	}
	return nil
}
