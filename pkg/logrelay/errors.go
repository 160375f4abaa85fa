package logrelay

import (
	"errors"
	"fmt"

	"github.com/logrelay/logrelay-go/internal/safefile"
)

// Sentinel errors.
var (
	// ErrNoSources is returned when a MultiSourceTailer is built with no sources.
	ErrNoSources = errors.New("no log sources configured")

	// ErrNotRegularFile is returned by FileTailer.Start when the path exists
	// but is a directory, FIFO, device or socket.
	ErrNotRegularFile = safefile.ErrNotRegularFile

	// ErrNoPatterns is returned when the parser is built without a pattern store.
	ErrNoPatterns = errors.New("pattern store is required")
)

// ConfigError reports an invalid source configuration.
type ConfigError struct {
	Index   int    // position of the source in the configured list
	ID      string // source ID, if known
	Message string
}

func (e *ConfigError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("source[%d] (%s): %s", e.Index, e.ID, e.Message)
	}
	return fmt.Sprintf("source[%d]: %s", e.Index, e.Message)
}

// SourceError wraps an error attributed to one source.
type SourceError struct {
	Source string
	Op     string // "start", "stop", "handle"
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}
