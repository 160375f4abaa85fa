package pattern_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

func readFile(t *testing.T, path string) (*pattern.Document, error) {
	t.Helper()
	return pattern.Read(context.Background(), pattern.NewFileSource(path), matcher.Compiler{}, pattern.Limits{})
}

func names(defs []pattern.Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func TestRead_Valid(t *testing.T) {
	doc, err := readFile(t, "testdata/valid.yaml")
	require.NoError(t, err)
	assert.Empty(t, doc.Problems)
	assert.Equal(t, "valid.yaml", doc.Source)
	require.Len(t, doc.Definitions, 4)

	chat := doc.Definitions[0]
	assert.Equal(t, "chat", chat.Name)
	assert.Equal(t, `^\[CHAT\] (\w+): (.*)$`, chat.Regex)
	assert.Equal(t, "chat", chat.Type)
	assert.Equal(t, "💬", chat.Emoji)
	assert.Equal(t, "{player}: {message}", chat.Template)
	assert.Equal(t, 5, chat.Priority)
	assert.Equal(t, "general", chat.Channel)
	assert.True(t, chat.Enabled)

	join := doc.Definitions[1]
	assert.Equal(t, pattern.DefaultPriority, join.Priority)
	assert.Empty(t, join.Channel)

	disabled := doc.Definitions[3]
	assert.False(t, disabled.Enabled)
	assert.Equal(t, "disabled_debug", disabled.Type, "type defaults to the name")
	assert.Equal(t, pattern.DefaultTemplate, disabled.Template)
}

func TestRead_DropsBadEntriesKeepsRest(t *testing.T) {
	doc, err := readFile(t, "testdata/mixed.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"good", "wrong_types"}, names(doc.Definitions))

	dropped := map[string]*pattern.EntryError{}
	fallbacks := map[string]bool{}
	for _, p := range doc.Problems {
		if p.Dropped {
			dropped[p.Name] = p
		} else {
			fallbacks[p.Field] = true
		}
	}
	assert.Contains(t, dropped, "extra_key")
	assert.Equal(t, "color", dropped["extra_key"].Field)
	assert.Contains(t, dropped, "bad_regex")
	assert.NotNil(t, dropped["bad_regex"].Unwrap(), "compile error is wrapped")
	assert.Contains(t, dropped, "no_regex")
	assert.Contains(t, dropped, "bad name")
	assert.Contains(t, dropped, "bad_template")
	assert.Equal(t, map[string]bool{"enabled": true, "priority": true, "emoji": true}, fallbacks)

	w := doc.Definitions[1]
	assert.True(t, w.Enabled)
	assert.Equal(t, pattern.DefaultPriority, w.Priority)
	assert.Empty(t, w.Emoji)
}

func TestRead_DocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"root not mapping", "testdata/not_mapping.yaml", "root must be a mapping"},
		{"missing root key", "testdata/missing_root.yaml", `missing "patterns" key`},
		{"file not found", "testdata/nonexistent.yaml", "cannot open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readFile(t, tt.path)
			require.Error(t, err)
			var docErr *pattern.DocumentError
			require.True(t, errors.As(err, &docErr))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRead_ErrorHidesDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := readFile(t, filepath.Join(dir, "secret", "patterns.yaml"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), dir)
}

func TestRead_RejectsDirectory(t *testing.T) {
	_, err := readFile(t, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regular file")
}

func TestRead_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(path, make([]byte, pattern.MaxDocumentSize+1), 0o644))
	_, err := readFile(t, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestRead_LargerLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	padding := strings.Repeat("# padding comment line\n", pattern.MaxDocumentSize/20)
	doc := padding + "patterns:\n  chat:\n    pattern: '^x$'\n"
	require.Greater(t, len(doc), pattern.MaxDocumentSize)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	limits := pattern.Limits{MaxDocumentSize: 2 * pattern.MaxDocumentSize}
	got, err := pattern.Read(context.Background(), pattern.NewFileSource(path), matcher.Compiler{}, limits)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat"}, names(got.Definitions))

	_, err = readFile(t, path)
	require.Error(t, err, "the default limit still applies")
	assert.Contains(t, err.Error(), "too large")
}

func TestParse_Empty(t *testing.T) {
	for _, data := range []string{"", "# only a comment\n"} {
		_, err := pattern.Parse("empty", []byte(data), matcher.Compiler{}, pattern.Limits{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := pattern.Parse("bad", []byte("patterns:\n  a: [unclosed"), matcher.Compiler{}, pattern.Limits{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestParse_PatternsNotMapping(t *testing.T) {
	_, err := pattern.Parse("list", []byte("patterns:\n  - a\n"), matcher.Compiler{}, pattern.Limits{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func generateDocument(n int) []byte {
	var b strings.Builder
	b.WriteString("patterns:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  p%03d:\n    pattern: '^line %d$'\n", i, i)
	}
	return []byte(b.String())
}

func TestParse_PatternCap(t *testing.T) {
	doc, err := pattern.Parse("at_cap", generateDocument(pattern.MaxPatternsPerDocument), matcher.Compiler{}, pattern.Limits{})
	require.NoError(t, err)
	assert.Len(t, doc.Definitions, pattern.MaxPatternsPerDocument)

	_, err = pattern.Parse("over_cap", generateDocument(pattern.MaxPatternsPerDocument+1), matcher.Compiler{}, pattern.Limits{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many patterns")

	_, err = pattern.Parse("custom_cap", generateDocument(6), matcher.Compiler{}, pattern.Limits{MaxPatterns: 5})
	require.Error(t, err)
}

func TestParse_PatternLength(t *testing.T) {
	atMax := strings.Repeat("a", pattern.MaxPatternLength)
	overMax := atMax + "a"
	data := fmt.Sprintf("patterns:\n  at_max:\n    pattern: %s\n  over_max:\n    pattern: %s\n", atMax, overMax)

	doc, err := pattern.Parse("length", []byte(data), matcher.Compiler{}, pattern.Limits{})
	require.NoError(t, err)
	assert.Equal(t, []string{"at_max"}, names(doc.Definitions))
	require.Len(t, doc.Problems, 1)
	assert.Contains(t, doc.Problems[0].Error(), "pattern too long")
}

func TestParse_DuplicateNameInDocument(t *testing.T) {
	data := "patterns:\n  dup:\n    pattern: '^first$'\n  dup:\n    pattern: '^second$'\n"
	doc, err := pattern.Parse("dup", []byte(data), matcher.Compiler{}, pattern.Limits{})
	require.NoError(t, err)
	require.Len(t, doc.Definitions, 1)
	assert.Equal(t, "^first$", doc.Definitions[0].Regex)
}

func TestParse_NegativePriority(t *testing.T) {
	data := "patterns:\n  neg:\n    pattern: '^x$'\n    priority: -3\n"
	doc, err := pattern.Parse("neg", []byte(data), matcher.Compiler{}, pattern.Limits{})
	require.NoError(t, err)
	require.Len(t, doc.Definitions, 1)
	assert.Equal(t, pattern.DefaultPriority, doc.Definitions[0].Priority)
	require.Len(t, doc.Problems, 1)
	assert.False(t, doc.Problems[0].Dropped)
}

func TestParse_EngineSpecificSyntax(t *testing.T) {
	data := "patterns:\n  look:\n    pattern: '^(?=admin)(\\w+)$'\n"

	doc, err := pattern.Parse("look", []byte(data), matcher.Compiler{}, pattern.Limits{})
	require.NoError(t, err)
	assert.Empty(t, doc.Definitions, "linear engine rejects lookahead")

	doc, err = pattern.Parse("look", []byte(data), matcher.Compiler{Engine: matcher.EngineBacktrack}, pattern.Limits{})
	require.NoError(t, err)
	assert.Len(t, doc.Definitions, 1)
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		tmpl    string
		wantErr bool
	}{
		{"{player}: {message}", false},
		{"{message}", false},
		{"plain text", false},
		{"", false},
		{"{player} {player}", false},
		{"{name}", true},
		{"{}", true},
		{"{Player}", true},
		{strings.Repeat("x", pattern.MaxTemplateLength), false},
		{strings.Repeat("x", pattern.MaxTemplateLength+1), true},
	}

	for _, tt := range tests {
		err := pattern.ValidateTemplate(tt.tmpl)
		if tt.wantErr {
			assert.Error(t, err, tt.tmpl)
		} else {
			assert.NoError(t, err, tt.tmpl)
		}
	}
}

func TestRender(t *testing.T) {
	assert.Equal(t, "alice: hi", pattern.Render("{player}: {message}", "alice", "hi"))
	// Values are not expanded again.
	assert.Equal(t, "a {message} said {message}", pattern.Render("{player} said {message}", "a {message}", "{message}"))
}
