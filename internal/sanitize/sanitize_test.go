package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeutralizeMassPings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"everyone", "hello @everyone", "hello @\u200beveryone"},
		{"here", "@here now", "@\u200bhere now"},
		{"mixed case", "@EveryOne and @HERE", "@\u200bEveryOne and @\u200bHERE"},
		{"user untouched", "hi @SomeUser", "hi @SomeUser"},
		{"no mention", "plain text", "plain text"},
		{"twice", "@everyone@everyone", "@\u200beveryone@\u200beveryone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeutralizeMassPings(tt.input))
		})
	}
}

func TestField_NoActionableMassPing(t *testing.T) {
	inputs := []string{
		"@everyone", "@Everyone", "@EVERYONE", "@here", "@hErE",
		"x@everyone", "**@here**", "`@everyone`", "@@everyone",
	}
	for _, in := range inputs {
		out := Message(in)
		lower := strings.ToLower(out)
		assert.NotContains(t, lower, "@everyone", "input %q", in)
		assert.NotContains(t, lower, "@here", "input %q", in)
	}
}

func TestField_EscapesMarkup(t *testing.T) {
	got := Message("**bold** _it_ ~~s~~ `code` ||spoiler|| > quote \\")
	assert.Equal(t, `\*\*bold\*\* \_it\_ \~\~s\~\~ \`+"`"+`code\`+"`"+` \|\|spoiler\|\| \> quote \\`, got)
}

func TestField_KeepsUserMentions(t *testing.T) {
	assert.Equal(t, "ping @SomeUser", Message("ping @SomeUser"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "a\ufffd", Truncate("a\xff", 5))
}

func TestSender_Truncates(t *testing.T) {
	long := strings.Repeat("n", MaxSenderLength+10)
	assert.Len(t, Sender(long), MaxSenderLength)
}

func TestMessage_TruncatesBeforeEscaping(t *testing.T) {
	in := strings.Repeat("*", MaxMessageLength+5)
	out := Message(in)
	// every kept rune is escaped, so the escape never gets cut in half
	assert.Equal(t, strings.Repeat(`\*`, MaxMessageLength), out)
}

func TestMentions(t *testing.T) {
	assert.Nil(t, Mentions("no mentions here"))
	assert.Equal(t, []string{"everyone"}, Mentions("hello @everyone"))
	assert.Equal(t, []string{"Alex", "mods"}, Mentions("@Alex tell @mods and @alex"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		mentions []string
		want     MentionClass
	}{
		{"none", nil, ""},
		{"user", []string{"Alex"}, MentionUser},
		{"group", []string{"everyone", "Mods"}, MentionGroup},
		{"mixed", []string{"Alex", "staff"}, MentionMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.mentions))
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "abcde...", Preview("abcdefghij", 5))
}
