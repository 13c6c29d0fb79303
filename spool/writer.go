package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrInvalidFilenameInOutDir is fatal: every non-partial spool filename
// must be a bare unsigned decimal sequence number.
var ErrInvalidFilenameInOutDir = errors.New("spool: invalid filename in spool directory")

// maxFilenameBytes bounds spool filenames.
const maxFilenameBytes = 255

const partialSuffix = ".partial"

// Writer emits one file per message into a spool directory, tracking
// the next sequence number to assign. It is not safe for concurrent
// use - only a single logger process may write to a given spool.
type Writer struct {
	dir     string
	nextSeq uint32
}

// NewWriter recovers writer state from an existing spool directory:
// removes leftover *.partial files from an interrupted previous run,
// then computes next sequence number as max(existing names)+1, or 0 if
// the directory is empty.
func NewWriter(dir string) (*Writer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("spool: read dir %s: %w", dir, err)
	}

	var maxSeq uint32
	haveAny := false
	for _, ent := range entries {
		name := ent.Name()
		if hasSuffix(name, partialSuffix) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("spool: remove leftover partial %s: %w", name, err)
			}
			continue
		}
		seq, err := parseSeqName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFilenameInOutDir, name)
		}
		if !haveAny || seq > maxSeq {
			maxSeq = seq
		}
		haveAny = true
	}

	next := uint32(0)
	if haveAny {
		next = maxSeq + 1
	}
	return &Writer{dir: dir, nextSeq: next}, nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func parseSeqName(name string) (uint32, error) {
	v, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// isEmpty reports whether the spool directory currently has no
// entries at all (used for the reset rule below).
func (w *Writer) isEmpty() (bool, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return false, fmt.Errorf("spool: read dir %s: %w", w.dir, err)
	}
	return len(entries) == 0, nil
}

// Write assigns the next sequence number and atomically publishes the
// entry: write to "<seq>.partial", close, rename to "<seq>". Before
// writing, if next_seq_num != 0 and the directory is observed empty,
// it resets to 0 first. This accepts a race against a concurrent
// publisher draining the directory between the emptiness check and
// the write, rather than adding a directory lock.
func (w *Writer) Write(e Entry) (uint32, error) {
	if w.nextSeq != 0 {
		empty, err := w.isEmpty()
		if err != nil {
			return 0, err
		}
		if empty {
			w.nextSeq = 0
		}
	}

	seq := w.nextSeq
	name := strconv.FormatUint(uint64(seq), 10)
	if len(name) > maxFilenameBytes {
		return 0, fmt.Errorf("spool: sequence number %d exceeds filename bound", seq)
	}

	partialPath := filepath.Join(w.dir, name+partialSuffix)
	finalPath := filepath.Join(w.dir, name)

	if err := os.WriteFile(partialPath, e.Encode(), 0o644); err != nil {
		return 0, fmt.Errorf("spool: write %s: %w", partialPath, err)
	}
	if err := os.Rename(partialPath, finalPath); err != nil {
		return 0, fmt.Errorf("spool: rename %s to %s: %w", partialPath, finalPath, err)
	}

	w.nextSeq++
	return seq, nil
}

// NextSeq returns the sequence number the next Write call will assign,
// for tests and diagnostics.
func (w *Writer) NextSeq() uint32 { return w.nextSeq }
