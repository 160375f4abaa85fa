package pattern

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source supplies one pattern document.
type Source interface {
	// Name identifies the document in errors and logs. It must not be
	// a secret; FileSource uses the base name only.
	Name() string

	// Open returns the document contents. The caller closes the reader.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// sanitizePathError removes the path from os.PathError to prevent information leakage.
func sanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}

// FileSource reads a pattern document from a regular file.
type FileSource struct {
	Path string
}

// NewFileSource returns a Source reading path.
func NewFileSource(path string) FileSource {
	return FileSource{Path: path}
}

// Name returns the file's base name.
func (s FileSource) Name() string {
	return filepath.Base(s.Path)
}

// Open opens the file and checks that it is a regular file. FIFOs and
// devices are rejected so a misconfigured path cannot block the loader.
// Size is bounded by Read, which applies the caller's Limits.
func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", sanitizePathError(err))
	}

	// Stat the descriptor, not the path, to avoid TOCTOU.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat pattern file: %w", sanitizePathError(err))
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, errors.New("pattern file must be a regular file (not FIFO, device, or special file)")
	}
	return f, nil
}

// BytesSource is an in-memory pattern document.
type BytesSource struct {
	ID   string
	Data []byte
}

// NewBytesSource returns a Source serving data under the given name.
func NewBytesSource(name string, data []byte) BytesSource {
	return BytesSource{ID: name, Data: data}
}

// Name returns the configured name.
func (s BytesSource) Name() string {
	return s.ID
}

// Open returns a reader over the data.
func (s BytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}
