package pattern

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
)

// Limits bounds what a single document may contain.
type Limits struct {
	MaxDocumentSize int // <= 0 means MaxDocumentSize
	MaxPatterns     int // <= 0 means MaxPatternsPerDocument
}

func (l Limits) documentSize() int {
	if l.MaxDocumentSize <= 0 {
		return MaxDocumentSize
	}
	return l.MaxDocumentSize
}

func (l Limits) patterns() int {
	if l.MaxPatterns <= 0 {
		return MaxPatternsPerDocument
	}
	return l.MaxPatterns
}

// Document is the result of validating one pattern document.
type Document struct {
	Source      string
	Definitions []Definition // document order
	Problems    []*EntryError
}

// Read loads and validates the document from src.
func Read(ctx context.Context, src Source, compiler matcher.Compiler, limits Limits) (*Document, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, &DocumentError{Source: src.Name(), Message: "cannot open", Cause: sanitizePathError(err)}
	}
	defer rc.Close()

	limit := limits.documentSize()
	// Read one byte past the limit to detect oversized input.
	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return nil, &DocumentError{Source: src.Name(), Message: "cannot read", Cause: sanitizePathError(err)}
	}
	if len(data) > limit {
		return nil, &DocumentError{
			Source:  src.Name(),
			Message: fmt.Sprintf("document too large (max %d bytes)", limit),
		}
	}
	return Parse(src.Name(), data, compiler, limits)
}

// Parse validates a pattern document held in memory.
//
// A non-nil error means the whole document was rejected. Otherwise the
// returned Document holds every surviving definition plus a problem for each
// dropped entry and each field that fell back to its default.
func Parse(name string, data []byte, compiler matcher.Compiler, limits Limits) (*Document, error) {
	if len(data) > limits.documentSize() {
		return nil, &DocumentError{
			Source:  name,
			Message: fmt.Sprintf("document too large (max %d bytes)", limits.documentSize()),
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Source: name, Message: "invalid YAML", Cause: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &DocumentError{Source: name, Message: "document is empty"}
	}

	root := resolve(doc.Content[0])
	if isNull(root) {
		return nil, &DocumentError{Source: name, Message: "document is empty"}
	}
	if root.Kind != yaml.MappingNode {
		return nil, &DocumentError{Source: name, Message: "root must be a mapping"}
	}
	patterns := lookup(root, RootKey)
	if patterns == nil {
		return nil, &DocumentError{Source: name, Message: fmt.Sprintf("missing %q key", RootKey)}
	}
	if patterns.Kind != yaml.MappingNode {
		return nil, &DocumentError{Source: name, Message: fmt.Sprintf("%q must be a mapping", RootKey)}
	}

	count := len(patterns.Content) / 2
	if count > limits.patterns() {
		return nil, &DocumentError{
			Source:  name,
			Message: fmt.Sprintf("too many patterns (%d), maximum allowed is %d", count, limits.patterns()),
		}
	}

	out := &Document{Source: name}
	seen := make(map[string]struct{}, count)
	for i := 0; i+1 < len(patterns.Content); i += 2 {
		keyNode := resolve(patterns.Content[i])
		entryName := keyNode.Value

		if keyNode.Kind != yaml.ScalarNode || !ValidName(entryName) {
			out.drop(name, entryName, "", "invalid pattern name", nil)
			continue
		}
		if _, dup := seen[entryName]; dup {
			out.drop(name, entryName, "", "duplicate pattern name", nil)
			continue
		}
		seen[entryName] = struct{}{}

		def, ok := out.entry(name, entryName, resolve(patterns.Content[i+1]), compiler)
		if ok {
			out.Definitions = append(out.Definitions, def)
		}
	}
	return out, nil
}

// entry validates one pattern body. ok is false when the entry is dropped.
func (d *Document) entry(src, name string, body *yaml.Node, compiler matcher.Compiler) (Definition, bool) {
	if body.Kind != yaml.MappingNode {
		d.drop(src, name, "", "pattern must be a mapping", nil)
		return Definition{}, false
	}

	fields := make(map[string]*yaml.Node, len(body.Content)/2)
	for i := 0; i+1 < len(body.Content); i += 2 {
		key := resolve(body.Content[i]).Value
		if _, ok := allowedKeys[key]; !ok {
			d.drop(src, name, key, "unexpected key", nil)
			return Definition{}, false
		}
		if _, dup := fields[key]; dup {
			d.drop(src, name, key, "key defined more than once", nil)
			return Definition{}, false
		}
		fields[key] = resolve(body.Content[i+1])
	}

	def := Definition{
		Name:     name,
		Type:     name,
		Template: DefaultTemplate,
		Enabled:  true,
		Priority: DefaultPriority,
		Source:   src,
	}

	// pattern is required and must compile.
	re, ok := fields[keyPattern]
	switch {
	case !ok:
		d.drop(src, name, keyPattern, "pattern is required", nil)
		return Definition{}, false
	case !isString(re):
		d.drop(src, name, keyPattern, "pattern must be a string", nil)
		return Definition{}, false
	case re.Value == "":
		d.drop(src, name, keyPattern, "pattern is empty", nil)
		return Definition{}, false
	case len(re.Value) > MaxPatternLength:
		d.drop(src, name, keyPattern,
			fmt.Sprintf("pattern too long: %d bytes (max %d)", len(re.Value), MaxPatternLength), nil)
		return Definition{}, false
	}
	if _, err := compiler.Compile(re.Value); err != nil {
		d.drop(src, name, keyPattern, "pattern does not compile", err)
		return Definition{}, false
	}
	def.Regex = re.Value

	d.stringField(src, name, fields, keyType, &def.Type)
	d.stringField(src, name, fields, keyEmoji, &def.Emoji)
	d.stringField(src, name, fields, keyChannel, &def.Channel)

	if d.stringField(src, name, fields, keyMessage, &def.Template) {
		if err := ValidateTemplate(def.Template); err != nil {
			d.drop(src, name, keyMessage, "invalid template", err)
			return Definition{}, false
		}
	}

	if n, ok := fields[keyEnabled]; ok && !isNull(n) {
		if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!bool" {
			if v, err := strconv.ParseBool(n.Value); err == nil {
				def.Enabled = v
			} else {
				d.fallback(src, name, keyEnabled, "enabled must be a boolean")
			}
		} else {
			d.fallback(src, name, keyEnabled, "enabled must be a boolean")
		}
	}

	if n, ok := fields[keyPriority]; ok && !isNull(n) {
		var v int
		if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" || n.Decode(&v) != nil {
			d.fallback(src, name, keyPriority, "priority must be an integer")
		} else if v < 0 {
			d.fallback(src, name, keyPriority, "priority must not be negative")
		} else {
			def.Priority = v
		}
	}

	return def, true
}

// stringField copies a string field into dst. It reports whether dst was set
// from the document; type mismatches keep the default and are recorded.
func (d *Document) stringField(src, name string, fields map[string]*yaml.Node, key string, dst *string) bool {
	n, ok := fields[key]
	if !ok || isNull(n) {
		return false
	}
	if !isString(n) {
		d.fallback(src, name, key, key+" must be a string")
		return false
	}
	*dst = n.Value
	return true
}

func (d *Document) drop(src, name, field, msg string, cause error) {
	d.Problems = append(d.Problems, &EntryError{
		Source: src, Name: name, Field: field, Message: msg, Dropped: true, Cause: cause,
	})
}

func (d *Document) fallback(src, name, field, msg string) {
	d.Problems = append(d.Problems, &EntryError{
		Source: src, Name: name, Field: field, Message: msg + "; using default",
	})
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if resolve(m.Content[i]).Value == key {
			return resolve(m.Content[i+1])
		}
	}
	return nil
}

func isString(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
