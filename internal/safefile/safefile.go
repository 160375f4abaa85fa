// Package safefile opens log files without blocking on special files and
// tracks their identity across rotation.
package safefile

import (
	"errors"
	"os"
)

// ErrNotRegularFile is returned when a path names a directory, FIFO, device
// or socket. Symlinks to regular files are followed.
var ErrNotRegularFile = errors.New("not a regular file")

// Change describes how the file at a path differs from an open Handle.
type Change string

const (
	Unchanged Change = ""
	Missing   Change = "missing"   // path no longer exists
	StatError Change = "stat_error" // path could not be inspected
	Replaced  Change = "replaced"  // path now names a different file
	Truncated Change = "truncated" // same file, shorter than the read offset
)

// CheckRegular returns ErrNotRegularFile if path exists and is not a regular
// file. A missing path is not an error.
func CheckRegular(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return ErrNotRegularFile
	}
	return nil
}

// Handle is an open regular file and the identity it had when opened.
type Handle struct {
	*os.File
	info os.FileInfo
}

// Open opens path for reading.
//
// The path is stat-ed before opening so a FIFO never blocks the caller, and
// the descriptor is stat-ed after opening to catch a swap in between.
func Open(path string) (*Handle, error) {
	pre, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !pre.Mode().IsRegular() {
		return nil, ErrNotRegularFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotRegularFile
	}
	return &Handle{File: f, info: info}, nil
}

// Info returns the file's identity at open time.
func (h *Handle) Info() os.FileInfo {
	return h.info
}

// SameFile reports whether info describes the file h was opened on.
func (h *Handle) SameFile(info os.FileInfo) bool {
	return info != nil && os.SameFile(h.info, info)
}

// Compare stats path and reports whether it still names h's file with at
// least offset bytes.
func (h *Handle) Compare(path string, offset int64) Change {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Missing
	case err != nil:
		return StatError
	case !os.SameFile(h.info, info):
		return Replaced
	case info.Size() < offset:
		return Truncated
	default:
		return Unchanged
	}
}
