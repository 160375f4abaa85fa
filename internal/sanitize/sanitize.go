// Package sanitize neutralizes untrusted text before it is rendered into
// chat markup.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxSenderLength is the maximum number of runes kept from a sender name.
	MaxSenderLength = 64

	// MaxMessageLength is the maximum number of runes kept from a message.
	MaxMessageLength = 1000

	// ZeroWidthSpace is inserted after '@' to make broadcast mentions inert.
	ZeroWidthSpace = "\u200b"
)

// MentionClass classifies the set of mentions found in a message.
type MentionClass string

const (
	MentionUser  MentionClass = "user"
	MentionGroup MentionClass = "group"
	MentionMixed MentionClass = "mixed"
)

// broadcastMentions are mention targets that address a role or a whole
// audience rather than one person.
var broadcastMentions = map[string]struct{}{
	"everyone":   {},
	"here":       {},
	"all":        {},
	"admin":      {},
	"admins":     {},
	"mod":        {},
	"mods":       {},
	"moderators": {},
	"staff":      {},
	"ops":        {},
	"owner":      {},
}

var (
	massPingPattern = regexp.MustCompile(`(?i)@(everyone|here)`)
	mentionPattern  = regexp.MustCompile(`@(\w+)`)

	markupEscaper = strings.NewReplacer(
		`\`, `\\`,
		`*`, `\*`,
		`_`, `\_`,
		`~`, `\~`,
		"`", "\\`",
		`|`, `\|`,
		`>`, `\>`,
	)
)

// Sender sanitizes a player name.
func Sender(s string) string {
	return Field(s, MaxSenderLength)
}

// Message sanitizes a chat message.
func Message(s string) string {
	return Field(s, MaxMessageLength)
}

// Field truncates s to maxRunes, escapes chat markup and neutralizes
// @everyone/@here. Ordinary @name mentions are left intact.
func Field(s string, maxRunes int) string {
	s = Truncate(s, maxRunes)
	s = markupEscaper.Replace(s)
	return NeutralizeMassPings(s)
}

// Truncate returns at most maxRunes runes of s. Invalid UTF-8 is replaced.
func Truncate(s string, maxRunes int) string {
	s = strings.ToValidUTF8(s, "\ufffd")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// NeutralizeMassPings inserts a zero-width space after the '@' of every
// @everyone and @here, in any letter case.
func NeutralizeMassPings(s string) string {
	return massPingPattern.ReplaceAllString(s, "@"+ZeroWidthSpace+"$1")
}

// Mentions returns the @word targets in s in order of first appearance,
// without the '@'. Duplicates are dropped case-insensitively.
func Mentions(s string) []string {
	found := mentionPattern.FindAllStringSubmatch(s, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, m := range found {
		key := strings.ToLower(m[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Classify reports whether mentions target users, groups, or both.
// It returns the empty class for no mentions.
func Classify(mentions []string) MentionClass {
	if len(mentions) == 0 {
		return ""
	}
	groups := 0
	for _, m := range mentions {
		if IsBroadcast(m) {
			groups++
		}
	}
	switch groups {
	case 0:
		return MentionUser
	case len(mentions):
		return MentionGroup
	default:
		return MentionMixed
	}
}

// IsBroadcast reports whether a mention target addresses a role or audience.
func IsBroadcast(target string) bool {
	_, ok := broadcastMentions[strings.ToLower(target)]
	return ok
}

// Preview shortens s for log output.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}
