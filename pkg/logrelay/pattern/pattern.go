// Package pattern loads operator-defined log patterns from YAML documents.
//
// A document maps pattern names to definitions under a single "patterns" key:
//
//	patterns:
//	  chat:
//	    pattern: '^\[CHAT\] (\w+): (.*)$'
//	    type: chat
//	    emoji: "💬"
//	    message: "{player}: {message}"
//	    priority: 5
//	    channel: general
//	  server_notice:
//	    pattern: '^\[Server\] (.*)$'
//	    type: server
//	    message: "{message}"
//
// Loading is lenient per entry: an entry with an unknown key, a missing or
// invalid regex, or an invalid template is dropped; a field with the wrong
// type falls back to its default. Only whole-document problems (oversized,
// malformed, too many entries) reject a document.
package pattern

import (
	"regexp"
	"strings"
)

const (
	// MaxDocumentSize is the maximum size of one pattern document (1 MiB).
	MaxDocumentSize = 1 * 1024 * 1024

	// MaxPatternsPerDocument is the default cap on entries in one document.
	// A document over the cap is rejected in full.
	MaxPatternsPerDocument = 100

	// MaxPatternLength is the maximum length of a regex, in bytes.
	MaxPatternLength = 500

	// MaxTemplateLength is the maximum length of a message template, in bytes.
	MaxTemplateLength = 200

	// DefaultTemplate is used when an entry has no usable message template.
	DefaultTemplate = "{player}: {message}"

	// DefaultPriority is used when an entry has no usable priority.
	DefaultPriority = 10

	// PlayerPlaceholder and MessagePlaceholder are the only placeholders
	// a template may contain.
	PlayerPlaceholder  = "{player}"
	MessagePlaceholder = "{message}"

	// RootKey is the top-level key holding the pattern mapping.
	RootKey = "patterns"
)

// Entry keys. Any other key drops the entry.
const (
	keyPattern  = "pattern"
	keyType     = "type"
	keyEmoji    = "emoji"
	keyMessage  = "message"
	keyEnabled  = "enabled"
	keyPriority = "priority"
	keyChannel  = "channel"
)

var allowedKeys = map[string]struct{}{
	keyPattern:  {},
	keyType:     {},
	keyEmoji:    {},
	keyMessage:  {},
	keyEnabled:  {},
	keyPriority: {},
	keyChannel:  {},
}

var (
	namePattern        = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)
)

// Definition is one validated pattern. Definitions are immutable once loaded.
type Definition struct {
	Name     string
	Regex    string
	Type     string // free-form; see event.ParseKind
	Emoji    string
	Template string
	Enabled  bool
	Priority int
	Channel  string

	// Source is the name of the document the definition came from.
	Source string
}

// ValidName reports whether name may be used as a pattern name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// ValidateTemplate checks a message template's length and placeholders.
func ValidateTemplate(tmpl string) error {
	if len(tmpl) > MaxTemplateLength {
		return &templateError{msg: "template too long"}
	}
	for _, ph := range placeholderPattern.FindAllString(tmpl, -1) {
		if ph != PlayerPlaceholder && ph != MessagePlaceholder {
			return &templateError{msg: "unknown placeholder " + ph}
		}
	}
	return nil
}

type templateError struct {
	msg string
}

func (e *templateError) Error() string { return e.msg }

// Render substitutes the literal placeholders in tmpl. Values are inserted
// verbatim; nothing in them is interpreted.
func Render(tmpl, player, message string) string {
	return strings.NewReplacer(PlayerPlaceholder, player, MessagePlaceholder, message).Replace(tmpl)
}
