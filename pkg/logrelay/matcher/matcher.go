// Package matcher provides regular expression matching with a bounded worst case.
//
// Two engines are available and one is chosen at startup:
//
//   - EngineLinear (default) uses Go's RE2-based regexp package, whose match
//     time is linear in the input regardless of pattern shape.
//   - EngineBacktrack uses github.com/dlclark/regexp2, which supports
//     lookaround and backreferences but can backtrack catastrophically. Every
//     match runs under a hard MatchTimeout; a timeout is reported as
//     ErrMatchTimeout and callers treat it as "no match". This is best-effort:
//     the engine polls a coarse clock, so a match may overrun the budget by
//     the clock's granularity.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Engine selects the regular expression implementation.
type Engine string

const (
	EngineLinear    Engine = "linear"
	EngineBacktrack Engine = "backtrack"
)

// DefaultTimeout is the per-match budget for EngineBacktrack.
const DefaultTimeout = 50 * time.Millisecond

// ErrMatchTimeout is returned when a backtracking match exceeds its budget.
var ErrMatchTimeout = errors.New("regex match timeout")

// Matcher is a compiled pattern whose matches complete in bounded time.
type Matcher interface {
	// FindStringSubmatch returns the whole match followed by each capture
	// group, or nil when s does not match. Unset groups are empty strings.
	FindStringSubmatch(s string) ([]string, error)

	// NumSubexp returns the number of capture groups.
	NumSubexp() int

	// String returns the source expression.
	String() string
}

// ParseEngine converts a configuration string into an Engine.
// The empty string selects EngineLinear.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "", EngineLinear:
		return EngineLinear, nil
	case EngineBacktrack:
		return EngineBacktrack, nil
	default:
		return "", fmt.Errorf("unknown regex engine %q (want %q or %q)", s, EngineLinear, EngineBacktrack)
	}
}

// Compiler compiles expressions for one engine. The zero value compiles with
// EngineLinear.
type Compiler struct {
	Engine  Engine
	Timeout time.Duration // EngineBacktrack only; <= 0 means DefaultTimeout
}

// Compile compiles expr for the configured engine.
func (c Compiler) Compile(expr string) (Matcher, error) {
	switch c.Engine {
	case "", EngineLinear:
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return linear{re: re}, nil
	case EngineBacktrack:
		re, err := regexp2.Compile(expr, regexp2.RE2)
		if err != nil {
			return nil, err
		}
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		re.MatchTimeout = timeout
		return &backtrack{re: re, numbers: groupNumbers(re, expr)}, nil
	default:
		return nil, fmt.Errorf("unknown regex engine %q", c.Engine)
	}
}

type linear struct {
	re *regexp.Regexp
}

func (m linear) FindStringSubmatch(s string) ([]string, error) {
	return m.re.FindStringSubmatch(s), nil
}

func (m linear) NumSubexp() int { return m.re.NumSubexp() }

func (m linear) String() string { return m.re.String() }

type backtrack struct {
	re *regexp2.Regexp
	// numbers[i] is the regexp2 group number of the i-th capture in the
	// pattern text. regexp2 numbers named groups after all unnamed ones.
	numbers []int
}

// groupNumbers maps captures, in the order they open in expr, to regexp2
// group numbers. If the scan disagrees with the compiled group count the
// engine's own numbering is used.
func groupNumbers(re *regexp2.Regexp, expr string) []int {
	total := len(re.GetGroupNumbers())
	names := captureNames(expr)

	numbers := make([]int, 1, total)
	unnamed := 0
	for _, name := range names {
		if name == "" {
			unnamed++
			numbers = append(numbers, unnamed)
			continue
		}
		numbers = append(numbers, re.GroupNumberFromName(name))
	}

	if len(numbers) != total || !distinct(numbers) {
		numbers = numbers[:0]
		for i := 0; i < total; i++ {
			numbers = append(numbers, i)
		}
	}
	return numbers
}

func distinct(ns []int) bool {
	seen := make(map[int]struct{}, len(ns))
	for _, n := range ns {
		if _, dup := seen[n]; dup || n < 0 {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}

// captureNames lists the capturing groups of expr in opening order. Unnamed
// groups are "". Escapes, character classes, \Q...\E literals, comments and
// non-capturing or lookaround groups are skipped.
func captureNames(expr string) []string {
	var names []string
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			if strings.HasPrefix(expr[i:], `\Q`) {
				end := strings.Index(expr[i+2:], `\E`)
				if end < 0 {
					return names
				}
				i += 2 + end + 1
				continue
			}
			i++
		case '[':
			i = classEnd(expr, i)
		case '(':
			rest := expr[i+1:]
			switch {
			case !strings.HasPrefix(rest, "?"):
				names = append(names, "")
			case strings.HasPrefix(rest, "?#"):
				if end := strings.IndexByte(rest, ')'); end >= 0 {
					i += end + 1
				}
			case strings.HasPrefix(rest, "?P<"):
				names = appendName(names, rest[3:], '>')
			case strings.HasPrefix(rest, "?<") && !strings.HasPrefix(rest, "?<=") && !strings.HasPrefix(rest, "?<!"):
				names = appendName(names, rest[2:], '>')
			case strings.HasPrefix(rest, "?'"):
				names = appendName(names, rest[2:], '\'')
			}
		}
	}
	return names
}

func appendName(names []string, rest string, term byte) []string {
	if end := strings.IndexByte(rest, term); end > 0 {
		return append(names, rest[:end])
	}
	return names
}

// classEnd returns the index of the ']' closing the class opened at i.
func classEnd(expr string, i int) int {
	j := i + 1
	if j < len(expr) && expr[j] == '^' {
		j++
	}
	if j < len(expr) && expr[j] == ']' {
		j++
	}
	for ; j < len(expr); j++ {
		switch {
		case expr[j] == '\\':
			j++
		case strings.HasPrefix(expr[j:], "[:"):
			if end := strings.Index(expr[j+2:], ":]"); end >= 0 {
				j += 2 + end + 1
			}
		case expr[j] == ']':
			return j
		}
	}
	return len(expr)
}

func (m *backtrack) FindStringSubmatch(s string) ([]string, error) {
	match, err := m.re.FindStringMatch(s)
	if err != nil {
		// regexp2 only fails at match time when MatchTimeout elapses.
		return nil, fmt.Errorf("%w: %v", ErrMatchTimeout, err)
	}
	if match == nil {
		return nil, nil
	}

	out := make([]string, len(m.numbers))
	for i, n := range m.numbers {
		if g := match.GroupByNumber(n); g != nil && len(g.Captures) > 0 {
			out[i] = g.String()
		}
	}
	return out, nil
}

func (m *backtrack) NumSubexp() int { return len(m.numbers) - 1 }

func (m *backtrack) String() string { return m.re.String() }
