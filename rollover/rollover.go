// Package rollover implements the Git branch-rewrite protocol: the
// live branch carries one commit per drain ("live update",
// force-pushed); master carries one fast-forward commit per closed
// day, named by that day's log path. A rollover rebases away the
// accumulated live-update commits, commits the closed day to master,
// and leaves the caller to point "now" at the new day.
package rollover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onnwee/irc-relay/gitops"
	"github.com/onnwee/irc-relay/telemetry"
)

// liveUpdateMessage is the commit message every drain's live-branch
// commit carries.
const liveUpdateMessage = "live update"

// Engine performs day rollovers and live-branch publications against
// one Git working tree.
type Engine struct {
	Git *gitops.Client
}

// NewEngine builds an Engine over the given git client.
func NewEngine(git *gitops.Client) *Engine {
	return &Engine{Git: git}
}

type statusEntry struct {
	path       string
	untracked  bool
}

// parseStatusPorcelain parses `git status --porcelain` short-format
// lines ("XY path", "??" for untracked).
func parseStatusPorcelain(out []byte) []statusEntry {
	var entries []statusEntry
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		entries = append(entries, statusEntry{path: path, untracked: code == "??"})
	}
	return entries
}

// Rollover closes the day currently pointed to by oldNowTarget and
// prepares the repository for a fresh "now" pointing at
// newDateFilename. Creating the new "now" and appending the incoming
// message is the caller's responsibility (package dateroute), since
// it happens after this function returns.
func (e *Engine) Rollover(ctx context.Context, oldNowTarget, newDateFilename string) error {
	ctx, span := telemetry.SpanForRollover(ctx, oldNowTarget)
	defer span.End()

	base, err := e.Git.RevParse(ctx, "HEAD")
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for {
		subject, err := e.Git.CommitSubject(ctx, base)
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		if !strings.HasPrefix(subject, liveUpdateMessage) {
			break
		}
		parent, err := e.Git.RevParse(ctx, base+"^")
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		base = parent
	}

	if err := e.Git.ResetSoft(ctx, base); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	statusOut, err := e.Git.StatusPorcelain(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	var (
		nowTracked    bool
		nowUntracked  bool
		oldNowPresent bool
	)
	for _, en := range parseStatusPorcelain(statusOut) {
		switch en.path {
		case "now":
			if en.untracked {
				nowUntracked = true
			} else {
				nowTracked = true
			}
		case oldNowTarget:
			oldNowPresent = true
		default:
			err := fmt.Errorf("%w: unexpected file %q after soft reset", ErrUnexpectedRepoState, en.path)
			telemetry.RecordError(span, err)
			return err
		}
	}

	if nowTracked {
		if err := e.Git.RmCached(ctx, "now"); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	if oldNowPresent {
		if err := e.Git.Add(ctx, oldNowTarget); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		if err := e.Git.Commit(ctx, oldNowTarget); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		if err := e.Git.PushMaster(ctx); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		if telemetry.RolloverCount != nil {
			telemetry.RolloverCount.Inc()
		}
	}

	// now must survive until after the master commit lands (order
	// matters): delete it only now.
	if nowTracked || nowUntracked {
		if err := os.Remove(filepath.Join(e.Git.RepoDir, "now")); err != nil && !os.IsNotExist(err) {
			err = fmt.Errorf("rollover: remove now: %w", err)
			telemetry.RecordError(span, err)
			return err
		}
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

// PublishLiveUpdate commits everything the last drain wrote and
// force-pushes it to the live branch. Called by the watcher loop once
// per drain that reported Published.
func PublishLiveUpdate(ctx context.Context, git *gitops.Client) error {
	if err := git.AddAll(ctx); err != nil {
		return err
	}
	if err := git.Commit(ctx, liveUpdateMessage); err != nil {
		return err
	}
	return git.PushLive(ctx)
}
