package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrMissingSpoolEndpoint is fatal: a spool file missing at the min or
// max of the observed range is an unexpected condition, unlike a
// missing interior file (tolerated - see the warn-and-continue path in
// Drain).
var ErrMissingSpoolEndpoint = errors.New("spool: spool file missing at range endpoint")

// Result reports whether a Drain pass published anything.
type Result int

const (
	// NoWork means the spool held nothing to process this pass.
	NoWork Result = iota
	// Published means at least one spool file was processed.
	Published
)

// Process is called once per spool entry, in ascending sequence-number
// order, with the raw file contents. Implementations append the entry
// into the destination log (the date router).
type Process func(ctx context.Context, seq uint32, raw []byte) error

// Drainer scans a spool directory and feeds each contiguous entry to a
// Process callback, deleting the file once processed.
type Drainer struct {
	dir     string
	process Process
}

// NewDrainer builds a Drainer over dir, calling process for each entry.
func NewDrainer(dir string, process Process) *Drainer {
	return &Drainer{dir: dir, process: process}
}

// Drain lists the spool directory, ignores *.partial files, and finds
// the minimum and maximum numeric names in a single pass. If none
// exist, it returns NoWork. Otherwise it walks i = min..=max: a
// missing interior file is logged and skipped (tolerating a spool
// drainer racing a concurrent, interrupted delete); a missing endpoint
// is fatal, since the range boundaries are supposed to exist by
// construction. Each present file is handed to process, then unlinked.
func (d *Drainer) Drain(ctx context.Context) (Result, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return NoWork, fmt.Errorf("spool: read dir %s: %w", d.dir, err)
	}

	var (
		min, max uint32
		have     bool
	)
	for _, ent := range entries {
		name := ent.Name()
		if hasSuffix(name, partialSuffix) {
			continue
		}
		seq, err := parseSeqName(name)
		if err != nil {
			return NoWork, fmt.Errorf("%w: %q", ErrInvalidFilenameInOutDir, name)
		}
		if !have {
			min, max, have = seq, seq, true
			continue
		}
		if seq < min {
			min = seq
		}
		if seq > max {
			max = seq
		}
	}

	if !have {
		return NoWork, nil
	}

	result := NoWork
	for i := min; ; i++ {
		path := filepath.Join(d.dir, fmt.Sprintf("%d", i))
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				if i == min || i == max {
					return NoWork, fmt.Errorf("%w: seq %d", ErrMissingSpoolEndpoint, i)
				}
				slog.Warn("spool: interior entry missing, tolerating interrupted delete", slog.Uint64("seq", uint64(i)))
				continue
			}
			return NoWork, fmt.Errorf("spool: read %s: %w", path, err)
		}

		if err := d.process(ctx, i, raw); err != nil {
			return NoWork, fmt.Errorf("spool: process seq %d: %w", i, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return NoWork, fmt.Errorf("spool: remove %s: %w", path, err)
		}
		result = Published

		if i == max {
			break
		}
	}

	return result, nil
}
