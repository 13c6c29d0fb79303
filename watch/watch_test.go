package watch

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/onnwee/irc-relay/spool"
)

func encodeEvent(wd int32, mask uint32, name string) []byte {
	nameBytes := []byte(name)
	// Pad the name to a multiple of 4 bytes, matching inotify(7)'s layout.
	padded := len(nameBytes)
	for padded%4 != 0 {
		padded++
	}
	buf := make([]byte, unix.SizeofInotifyEvent+padded)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(wd))
	binary.NativeEndian.PutUint32(buf[4:8], mask)
	binary.NativeEndian.PutUint32(buf[8:12], 0)
	binary.NativeEndian.PutUint32(buf[12:16], uint32(padded))
	copy(buf[unix.SizeofInotifyEvent:], nameBytes)
	return buf
}

func TestValidateEventsAcceptsMatchingMovedTo(t *testing.T) {
	buf := encodeEvent(7, unix.IN_MOVED_TO, "0")
	if err := validateEvents(buf, 7); err != nil {
		t.Fatalf("validateEvents error: %v", err)
	}
}

func TestValidateEventsRejectsWrongWatchDescriptor(t *testing.T) {
	buf := encodeEvent(9, unix.IN_MOVED_TO, "0")
	err := validateEvents(buf, 7)
	if !errors.Is(err, ErrUnexpectedNotification) {
		t.Fatalf("err = %v, want ErrUnexpectedNotification", err)
	}
}

func TestValidateEventsRejectsExtraMaskBits(t *testing.T) {
	buf := encodeEvent(7, unix.IN_MOVED_TO|unix.IN_ISDIR, "0")
	err := validateEvents(buf, 7)
	if !errors.Is(err, ErrUnexpectedNotification) {
		t.Fatalf("err = %v, want ErrUnexpectedNotification", err)
	}
}

func TestValidateEventsAcceptsMultipleEventsInOneBatch(t *testing.T) {
	buf := append(encodeEvent(7, unix.IN_MOVED_TO, "0"), encodeEvent(7, unix.IN_MOVED_TO, "1")...)
	if err := validateEvents(buf, 7); err != nil {
		t.Fatalf("validateEvents error: %v", err)
	}
}

func TestWatcherObservesRenameIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	src := filepath.Join(dir, "0.partial")
	dst := filepath.Join(dir, "0")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.Rename(src, dst)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.WaitForBatch(ctx); err != nil {
		t.Fatalf("WaitForBatch error: %v", err)
	}
}

func TestRunStartupDrainPublishesOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	drainCalls := 0
	publishCalls := 0
	drain := func(ctx context.Context) (spool.Result, error) {
		drainCalls++
		return spool.Published, nil
	}
	publish := func(ctx context.Context) error {
		publishCalls++
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := Run(ctx, w, drain, publish); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if drainCalls != 1 || publishCalls != 1 {
		t.Errorf("drainCalls=%d publishCalls=%d, want exactly one startup drain+publish", drainCalls, publishCalls)
	}
}
