package logrelay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logrelay/logrelay-go/internal/safefile"
	"github.com/logrelay/logrelay-go/internal/sanitize"
)

// FileTailer follows one log file and hands each new line to a handler.
//
// Lines are delivered in file order, one at a time: the next line is not
// read until the handler returns. Rotation is detected by file identity. A
// replacement file is read from its start, and a reopen of the same file
// resumes at the previous offset.
//
// Only a file present when Start is called has its existing content
// skipped. A file that first appears after Start is read from its first
// byte, as is every file found at the path after a rotation. Lines written
// between the rotation and the reopen are therefore delivered, not lost.
type FileTailer struct {
	path     string
	sourceID string
	handler  LineHandler
	cfg      config
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewFileTailer returns a tailer for path. It does not touch the file
// system; call Start to begin reading.
func NewFileTailer(path string, handler LineHandler, opts ...Option) *FileTailer {
	cfg := applyOptions(opts)
	return &FileTailer{
		path:     path,
		sourceID: path,
		handler:  handler,
		cfg:      *cfg,
		log:      cfg.logger.With("path", path),
	}
}

// Path returns the tailed path.
func (t *FileTailer) Path() string {
	return t.path
}

// Running reports whether the tail loop is active.
func (t *FileTailer) Running() bool {
	return t.running.Load()
}

// Start launches the tail loop. It is a no-op if the loop is already
// running. The path need not exist yet; Start fails only if it exists and
// is not a regular file.
//
// The loop runs until Stop is called or ctx is cancelled.
func (t *FileTailer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		if t.running.Load() {
			return nil
		}
		// The loop exited on its own when the parent context ended.
		t.cancel()
		<-t.done
		t.cancel, t.done = nil, nil
	}
	if err := safefile.CheckRegular(t.path); err != nil {
		return fmt.Errorf("tail %s: %w", t.path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.run(ctx, t.done)
	return nil
}

// Stop cancels the loop and blocks until it has exited and closed the file.
// Safe to call multiple times.
func (t *FileTailer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// position is where the loop resumes after a reopen.
type position struct {
	prev   os.FileInfo // identity of the last file read; nil before the first open
	offset int64       // end of the last complete line in prev
}

func (t *FileTailer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer t.running.Store(false)

	var pos position
	// Content present before Start is skipped; a file that only appears
	// later is new and is read in full.
	skipExisting := true

	for {
		h, err := t.open(ctx, &skipExisting)
		if err != nil {
			return // cancelled
		}

		offset, err := t.seek(h, pos, skipExisting)
		if err != nil {
			t.log.Warn("seek failed; reopening", "error", err)
			h.Close()
			if !t.sleep(ctx) {
				return
			}
			continue
		}
		skipExisting = false

		pos.prev = h.Info()
		pos.offset = t.follow(ctx, h, offset)
		h.Close()

		if ctx.Err() != nil {
			return
		}
		t.cfg.metrics.Rotation(t.sourceID)
	}
}

// open waits, interruptibly, until the path can be opened. skipExisting is
// cleared if the file was missing on the first attempt.
func (t *FileTailer) open(ctx context.Context, skipExisting *bool) (*safefile.Handle, error) {
	waiting := false
	for {
		h, err := safefile.Open(t.path)
		if err == nil {
			if waiting {
				t.log.Debug("log file appeared")
			}
			return h, nil
		}

		if errors.Is(err, os.ErrNotExist) {
			*skipExisting = false
		}
		if !waiting {
			t.log.Debug("waiting for log file", "error", err, "poll_interval", t.cfg.pollInterval)
			waiting = true
		}
		if !t.sleep(ctx) {
			return nil, ctx.Err()
		}
	}
}

// seek positions h and returns the resulting offset.
func (t *FileTailer) seek(h *safefile.Handle, pos position, skipExisting bool) (int64, error) {
	switch {
	case skipExisting:
		return h.Seek(0, io.SeekEnd)
	case h.SameFile(pos.prev) && h.Info().Size() >= pos.offset:
		t.log.Debug("reopened same file; resuming", "offset", pos.offset)
		return h.Seek(pos.offset, io.SeekStart)
	default:
		if pos.prev != nil {
			t.log.Info("reading log file from start")
		}
		return 0, nil
	}
}

// follow reads lines from h until ctx is done or the path stops naming h's
// file. It returns the offset just past the last complete line, so a
// partial line is read again after a reopen.
func (t *FileTailer) follow(ctx context.Context, h *safefile.Handle, offset int64) int64 {
	r := bufio.NewReader(h)
	var (
		buf        []byte
		read       = offset // bytes consumed so far
		committed  = offset
		discarding bool
	)

	for {
		if ctx.Err() != nil {
			return committed
		}

		chunk, err := r.ReadSlice('\n')
		read += int64(len(chunk))
		complete := err == nil

		switch {
		case discarding:
			if complete {
				discarding = false
				committed = read
			}
		case len(buf)+len(chunk) > t.cfg.maxBufferedLine:
			t.log.Warn("line exceeds buffer limit; discarding",
				"limit", t.cfg.maxBufferedLine,
				"preview", sanitize.Preview(string(buf), previewLength))
			buf = buf[:0]
			discarding = !complete
			committed = read
		default:
			buf = append(buf, chunk...)
			if complete {
				line := strings.TrimSpace(string(buf))
				buf = buf[:0]
				committed = read
				if line != "" {
					t.deliver(ctx, line)
				}
			}
		}

		switch {
		case complete, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if change := h.Compare(t.path, committed); change != safefile.Unchanged {
				t.log.Info("log file changed", "change", string(change))
				return committed
			}
			if !t.sleep(ctx) {
				return committed
			}
		default:
			t.log.Warn("read failed; reopening", "error", err)
			return committed
		}
	}
}

// deliver runs the handler, containing errors and panics.
func (t *FileTailer) deliver(ctx context.Context, line string) {
	t.cfg.metrics.LineRead(t.sourceID)
	defer func() {
		if r := recover(); r != nil {
			t.cfg.metrics.CallbackError(t.sourceID)
			t.log.Error("line handler panicked",
				"panic", r, "preview", sanitize.Preview(line, previewLength))
		}
	}()

	if err := t.handler(ctx, line); err != nil {
		t.cfg.metrics.CallbackError(t.sourceID)
		t.log.Warn("line handler failed",
			"error", err, "preview", sanitize.Preview(line, previewLength))
	}
}

// sleep waits one poll interval. It returns false if ctx ended first.
func (t *FileTailer) sleep(ctx context.Context) bool {
	timer := time.NewTimer(t.cfg.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
