// Package dateroute maps a spool entry's timestamp to its repository
// log path ("YYYY/MM-DD.txt"), tracks the repo-root "now" symlink that
// names the currently open day, and decides whether an incoming
// message belongs to the open day, a past day, or triggers a day
// rollover.
//
// The Gregorian calendar conversion (epoch seconds to Y/M/D) calls
// stdlib time.Unix(...).UTC().Date() directly; no third-party calendar
// library is warranted for a straight epoch-to-civil-date conversion.
package dateroute

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Date is the decoded (year, month, day) triple a repo log path names.
type Date struct {
	Year, Month, Day int
}

// Encode renders d as "YYYY/MM-DD.txt". Year is not zero-padded; month
// and day are always two digits (e.g. "2021/06-04.txt", "1/13-01.txt").
func Encode(d Date) string {
	return fmt.Sprintf("%d/%02d-%02d.txt", d.Year, d.Month, d.Day)
}

// Decode parses a "YYYY/MM-DD.txt" name back into a Date, validating
// year >= 1, month in 1..12, day in 1..31.
func Decode(name string) (Date, error) {
	if !strings.HasSuffix(name, ".txt") {
		return Date{}, fmt.Errorf("%w: filename %q does not end with '.txt'", ErrInvalidRepoDateFilename, name)
	}
	trimmed := strings.TrimSuffix(name, ".txt")

	slash := strings.IndexByte(trimmed, '/')
	if slash < 0 {
		return Date{}, fmt.Errorf("%w: filename %q has no '/' separator", ErrInvalidRepoDateFilename, name)
	}
	yearStr, rest := trimmed[:slash], trimmed[slash+1:]

	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return Date{}, fmt.Errorf("%w: filename %q has no '-' separator", ErrInvalidRepoDateFilename, name)
	}
	monthStr, dayStr := rest[:dash], rest[dash+1:]

	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1 {
		return Date{}, fmt.Errorf("%w: filename %q contains invalid year %q", ErrInvalidRepoDateFilename, name, yearStr)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return Date{}, fmt.Errorf("%w: filename %q contains month %d out of range", ErrInvalidRepoDateFilename, name, month)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return Date{}, fmt.Errorf("%w: filename %q contains day %d out of range", ErrInvalidRepoDateFilename, name, day)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// Compare orders two dates lexicographically on (year, month, day):
// negative if a < b, zero if equal, positive if a > b.
func Compare(a, b Date) int {
	if a.Year != b.Year {
		return a.Year - b.Year
	}
	if a.Month != b.Month {
		return a.Month - b.Month
	}
	return a.Day - b.Day
}

// RouteTimestamp converts an epoch-seconds timestamp into its repo log
// path, round-tripping the generated name through Decode as an
// integrity check.
func RouteTimestamp(ts uint64) (string, error) {
	t := time.Unix(int64(ts), 0).UTC()
	y, m, d := t.Date()
	want := Date{Year: y, Month: int(m), Day: d}

	name := Encode(want)
	got, err := Decode(name)
	if err != nil {
		return "", fmt.Errorf("%w: roundtrip decode of generated name %q failed: %v", ErrInvalidRepoDateFilename, name, err)
	}
	if got != want {
		return "", fmt.Errorf("%w: roundtrip mismatch for %q: got %+v, want %+v", ErrInvalidRepoDateFilename, name, got, want)
	}
	return name, nil
}

// RolloverFunc closes the previous open day and is supplied by the
// caller (cmd/irc-publisher, backed by package rollover) so this
// package never imports the branch-rewrite engine directly - the two
// interact only through this narrow seam.
type RolloverFunc func(ctx context.Context, oldNowTarget, newDateFilename string) error

// Router owns the repo-root "now" symlink and the append-only day log
// files it points between.
type Router struct {
	repoRoot string
	rollover RolloverFunc
}

// NewRouter builds a Router rooted at repoRoot. rollover may be nil in
// tests that never cross a day boundary.
func NewRouter(repoRoot string, rollover RolloverFunc) *Router {
	return &Router{repoRoot: repoRoot, rollover: rollover}
}

func (r *Router) nowPath() string { return filepath.Join(r.repoRoot, "now") }

// readNow reads the "now" symlink's target, reporting exists=false if
// it doesn't exist yet.
func (r *Router) readNow() (target string, exists bool, err error) {
	target, err = os.Readlink(r.nowPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("dateroute: read now: %w", err)
	}
	return target, true, nil
}

// createNow retargets the "now" symlink to target, removing any
// existing link first so that a rollover callback that leaves "now" in
// place (or no callback at all) doesn't make this fail with EEXIST;
// rollover.Engine itself has already deleted it.
func (r *Router) createNow(target string) error {
	if err := os.Remove(r.nowPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dateroute: remove existing now before retarget: %w", err)
	}
	if err := os.Symlink(target, r.nowPath()); err != nil {
		return fmt.Errorf("dateroute: create now -> %s: %w", target, err)
	}
	return nil
}

// appendToFile appends raw followed by the "\n\n" record terminator to
// the repo log file at name, creating its containing "YYYY/" directory
// on demand.
func (r *Router) appendToFile(name string, raw []byte) error {
	path := filepath.Join(r.repoRoot, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dateroute: mkdir for %s: %w", name, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("dateroute: open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("dateroute: append %s: %w", name, err)
	}
	if _, err := f.WriteString("\n\n"); err != nil {
		return fmt.Errorf("dateroute: append terminator to %s: %w", name, err)
	}
	return nil
}

// Append routes one drained spool entry's raw contents to its day's
// log file, rolling over the previous day first if ts names a strictly
// later day than the currently open "now".
func (r *Router) Append(ctx context.Context, ts uint64, raw []byte) error {
	name, err := RouteTimestamp(ts)
	if err != nil {
		return err
	}

	nowTarget, exists, err := r.readNow()
	if err != nil {
		return err
	}

	if !exists {
		if err := r.createNow(name); err != nil {
			return err
		}
		return r.appendToFile(name, raw)
	}

	if nowTarget == name {
		return r.appendToFile(name, raw)
	}

	nowDate, err := Decode(nowTarget)
	if err != nil {
		return err
	}
	incoming, err := Decode(name)
	if err != nil {
		return err
	}

	if Compare(incoming, nowDate) <= 0 {
		// Past, or an equal day with a different string (shouldn't
		// happen post-roundtrip): append to now's target anyway.
		// Ordering dominates timestamp fidelity here.
		return r.appendToFile(nowTarget, raw)
	}

	if r.rollover != nil {
		if err := r.rollover(ctx, nowTarget, name); err != nil {
			return fmt.Errorf("dateroute: rollover from %s to %s: %w", nowTarget, name, err)
		}
	}
	if err := r.createNow(name); err != nil {
		return err
	}
	return r.appendToFile(name, raw)
}
