package logrelay_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/logrelay/logrelay-go/pkg/logrelay"
)

// FuzzEventParser_Parse checks that arbitrary lines never panic and never
// produce an actionable mass ping.
func FuzzEventParser_Parse(f *testing.F) {
	p := newParser(f, testPatterns)

	f.Add("[CHAT] Steve: hello @everyone")
	f.Add("[CHAT] Steve: @HeRe @here@everyone")
	f.Add("[JOIN] Steve joined")
	f.Add("[Server] @everyone restart")
	f.Add("")
	f.Add(string([]byte{0xff, 0xfe, 0xfd}))
	f.Add("[CHAT] a: " + strings.Repeat("*_~`|>\\", 200))

	ctx := context.Background()
	f.Fuzz(func(t *testing.T, line string) {
		ev := p.Parse(ctx, line, "fuzz")
		if ev == nil {
			return
		}
		if len(line) > logrelay.MaxLineLength {
			t.Fatalf("over-long line produced an event")
		}
		for _, field := range []string{ev.Display, ev.Sender, ev.Message} {
			lower := strings.ToLower(field)
			if strings.Contains(lower, "@everyone") || strings.Contains(lower, "@here") {
				t.Errorf("actionable mass ping in %q", field)
			}
			if !utf8.ValidString(field) {
				t.Errorf("invalid UTF-8 in %q", field)
			}
		}
		if utf8.RuneCountInString(ev.Sender) > 64*2 {
			t.Errorf("sender too long: %d runes", utf8.RuneCountInString(ev.Sender))
		}
	})
}
