// Package event defines the structured events produced from log lines.
package event

import (
	"strings"
	"time"
)

// Kind identifies what a log line represents.
type Kind string

// Known event kinds. Pattern types outside this set map to Unknown.
const (
	Chat          Kind = "chat"
	Join          Kind = "join"
	Leave         Kind = "leave"
	Death         Kind = "death"
	Achievement   Kind = "achievement"
	Server        Kind = "server"
	Command       Kind = "command"
	Whisper       Kind = "whisper"
	Unknown       Kind = "unknown"
	SecurityAlert Kind = "security_alert"
)

var knownKinds = map[Kind]struct{}{
	Chat:          {},
	Join:          {},
	Leave:         {},
	Death:         {},
	Achievement:   {},
	Server:        {},
	Command:       {},
	Whisper:       {},
	Unknown:       {},
	SecurityAlert: {},
}

// ParseKind maps a configured type name onto a known Kind.
// Matching is case-insensitive; anything unrecognized is Unknown.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownKinds[k]; ok {
		return k
	}
	return Unknown
}

// SecurityChannel is the routing tag attached to every security alert.
const SecurityChannel = "security"

// Event is the sanitized result of a pattern match or a security escalation.
type Event struct {
	Kind    Kind   `json:"kind"`
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message,omitempty"`

	// Raw is the trimmed source line, unsanitized.
	Raw string `json:"raw"`

	Emoji   string `json:"emoji,omitempty"`
	Display string `json:"display"`

	// Source is the ID of the log source the line came from.
	Source string `json:"source,omitempty"`
	// Pattern is the name of the pattern that matched.
	Pattern string    `json:"pattern,omitempty"`
	Time    time.Time `json:"time"`

	Metadata Metadata `json:"metadata"`
}

// Metadata carries routing and mention information for delivery.
type Metadata struct {
	// Channel is the routing tag from the matching pattern.
	Channel string `json:"channel,omitempty"`

	// Mentions lists @targets from the raw message, in order.
	Mentions     []string `json:"mentions,omitempty"`
	MentionClass string   `json:"mention_class,omitempty"`

	// Incident is set on SecurityAlert events only.
	Incident *Incident `json:"incident,omitempty"`
}

// Incident describes malicious content reported by a security guard.
type Incident struct {
	ID          string    `json:"id,omitempty"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Fragment    string    `json:"fragment,omitempty"`
	AutoBanned  bool      `json:"auto_banned"`
	Timestamp   time.Time `json:"timestamp"`
}
