package logrelay_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/logrelay/logrelay-go/pkg/logrelay"
	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

func manyPatterns(n int) string {
	var b strings.Builder
	b.WriteString("patterns:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  p%d:\n    pattern: '^\\[EV%d\\] (\\w+): (.*)$'\n    priority: %d\n", i, i, i)
	}
	return b.String()
}

// BenchmarkParse_FirstMatch benchmarks a line matched by the first pattern.
func BenchmarkParse_FirstMatch(b *testing.B) {
	p := newParser(b, testPatterns)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Parse(ctx, "[CHAT] Steve: hello @everyone", "game")
	}
}

// BenchmarkParse_NoMatch benchmarks a line checked against every pattern.
func BenchmarkParse_NoMatch(b *testing.B) {
	p := newParser(b, manyPatterns(pattern.MaxPatternsPerDocument))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Parse(ctx, "2024-01-15 nothing interesting happened", "game")
	}
}

// BenchmarkParse_LastMatch benchmarks a line matched by the last of many patterns.
func BenchmarkParse_LastMatch(b *testing.B) {
	n := pattern.MaxPatternsPerDocument
	p := newParser(b, manyPatterns(n))
	line := fmt.Sprintf("[EV%d] Steve: hi", n-1)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Parse(ctx, line, "game")
	}
}

// BenchmarkParse_LongLine benchmarks a line at the length limit.
func BenchmarkParse_LongLine(b *testing.B) {
	p := newParser(b, testPatterns)
	line := "[CHAT] Steve: " + strings.Repeat("x", logrelay.MaxLineLength-20)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Parse(ctx, line, "game")
	}
}

// BenchmarkParse_Backtrack benchmarks the backtracking engine.
func BenchmarkParse_Backtrack(b *testing.B) {
	comp := matcher.Compiler{Engine: matcher.EngineBacktrack}
	store := pattern.NewStore(pattern.WithCompiler(comp))
	if _, err := store.Load(context.Background(), pattern.NewBytesSource("b", []byte(testPatterns))); err != nil {
		b.Fatal(err)
	}
	p, err := logrelay.NewEventParser(store, logrelay.WithCompiler(comp))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Parse(ctx, "[CHAT] Steve: hello @everyone", "game")
	}
}
