package pattern

import "fmt"

// DocumentError is a problem with a whole pattern document.
// The document is skipped; other documents are still loaded.
type DocumentError struct {
	Source  string // Source name
	Message string
	Cause   error // Underlying error (e.g., YAML syntax error)
}

func (e *DocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pattern document %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("pattern document %s: %s", e.Source, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// EntryError is a problem with a single pattern entry.
// Dropped is false when the field fell back to its default and the entry
// was kept.
type EntryError struct {
	Source  string
	Name    string
	Field   string // empty for entry-level problems
	Message string
	Dropped bool
	Cause   error // Underlying error (e.g., regex compile error)
}

func (e *EntryError) Error() string {
	where := fmt.Sprintf("pattern %q in %s", e.Name, e.Source)
	if e.Field != "" {
		where += ": " + e.Field
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", where, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *EntryError) Unwrap() error {
	return e.Cause
}
