// Package watch implements the publisher's filesystem-notification
// consumer: a real Linux inotify watch on the spool directory for
// "moved into" events, which is exactly what the logger's spool writer
// produces when it renames a "<seq>.partial" file to its final "<seq>"
// name.
//
// Grounded line-for-line on bureau-foundation-bureau's
// cmd/bureau-launcher/inotify.go: the same inotify_init1 / poll(2) /
// manual inotify_event struct parsing, adapted from its
// create-a-file-then-stop one-shot form into this package's forever
// batch-drain loop.
package watch

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/onnwee/irc-relay/spool"
)

// pollTimeoutMs bounds how long WaitForBatch blocks on the inotify fd
// before rechecking ctx for cancellation, mirroring the teacher's
// 100ms responsiveness tick.
const pollTimeoutMs = 100

// Watcher holds one inotify watch registered on a spool directory.
type Watcher struct {
	fd int
	wd int
}

// NewWatcher opens an inotify instance and registers an IN_MOVED_TO
// watch on dir.
func NewWatcher(dir string) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("watch: inotify_init1: %w", err)
	}
	wd, err := unix.InotifyAddWatch(fd, dir, unix.IN_MOVED_TO)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("watch: inotify_add_watch on %s: %w", dir, err)
	}
	return &Watcher{fd: fd, wd: wd}, nil
}

// Close releases the inotify file descriptor.
func (w *Watcher) Close() error { return unix.Close(w.fd) }

// WaitForBatch blocks until at least one inotify event arrives (or ctx
// is done), then validates every event in the batch against this
// watcher's registered watch descriptor and the IN_MOVED_TO mask.
func (w *Watcher) WaitForBatch(ctx context.Context) error {
	buffer := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("watch: poll: %w", err)
		}
		if n == 0 {
			continue
		}

		nRead, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return fmt.Errorf("watch: read: %w", err)
		}

		return validateEvents(buffer[:nRead], w.wd)
	}
}

// validateEvents walks the raw inotify buffer per inotify(7)'s struct
// layout (wd, mask, cookie, len, name[]), failing fatally on any event
// that doesn't match wantWd or carries bits other than IN_MOVED_TO.
func validateEvents(buf []byte, wantWd int) error {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		wd := int(int32(binary.NativeEndian.Uint32(buf[offset : offset+4])))
		mask := binary.NativeEndian.Uint32(buf[offset+4 : offset+8])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLen
		if offset+eventSize > len(buf) {
			break
		}

		if wd != wantWd {
			return fmt.Errorf("%w: watch descriptor %d, want %d", ErrUnexpectedNotification, wd, wantWd)
		}
		if mask&^uint32(unix.IN_MOVED_TO) != 0 {
			return fmt.Errorf("%w: mask 0x%x carries bits other than IN_MOVED_TO", ErrUnexpectedNotification, mask)
		}

		offset += eventSize
	}
	return nil
}

// DrainFunc runs one spool drain pass.
type DrainFunc func(ctx context.Context) (spool.Result, error)

// PublishFunc runs the live-branch publication for a drain that
// reported spool.Published.
type PublishFunc func(ctx context.Context) error

// Run loops forever: one startup drain to catch up on anything left
// over from a prior process, then repeatedly wait for a notification
// batch, drain, and publish if the drain published anything. Returns
// nil if ctx is cancelled between batches, or the first fatal error
// otherwise.
func Run(ctx context.Context, w *Watcher, drain DrainFunc, publish PublishFunc) error {
	if err := runDrainCycle(ctx, drain, publish); err != nil {
		return err
	}

	for {
		if err := w.WaitForBatch(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := runDrainCycle(ctx, drain, publish); err != nil {
			return err
		}
	}
}

func runDrainCycle(ctx context.Context, drain DrainFunc, publish PublishFunc) error {
	result, err := drain(ctx)
	if err != nil {
		return err
	}
	if result == spool.Published {
		return publish(ctx)
	}
	return nil
}
