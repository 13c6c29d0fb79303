// Package gitops is a thin adapter that runs `git` as a child process
// with an explicit argv and working directory, inheriting no stdin,
// capturing stdout/stderr as bytes, and failing on any non-zero exit
// status. The branch-rewrite engine (package rollover) is the only
// caller that needs anything beyond the bare Run primitive.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/onnwee/irc-relay/telemetry"
)

// GitRunner is the testable seam around invoking git. Implementations
// must not touch stdin and must return ErrChildProcessFailed (wrapped,
// with stderr attached) on a non-zero exit.
type GitRunner interface {
	Run(ctx context.Context, args []string, dir string, extraEnv []string) (stdout, stderr []byte, err error)
}

// ExecRunner is the real GitRunner, invoking the `git` binary from $PATH.
type ExecRunner struct{}

// Run shells out to git with args in dir, appending extraEnv to the
// child's environment (used for GIT_AUTHOR_*/GIT_COMMITTER_* on commit
// invocations).
func (ExecRunner) Run(ctx context.Context, args []string, dir string, extraEnv []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if telemetry.GitCommandDuration != nil {
		telemetry.GitCommandDuration.Observe(time.Since(start).Seconds())
	}
	if telemetry.GitCommandsRun != nil {
		telemetry.GitCommandsRun.Inc()
	}

	if err != nil {
		if telemetry.GitCommandsFail != nil {
			telemetry.GitCommandsFail.Inc()
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w: git %v: %v: %s", ErrChildProcessFailed, args, err, stderr.String())
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// Client wraps a GitRunner with the specific subcommands the rollover
// and publication paths need, so callers never hand-assemble argv.
type Client struct {
	Runner  GitRunner
	RepoDir string
	Env     []string // GIT_AUTHOR_*/GIT_COMMITTER_* forwarded to commit invocations
}

func (c *Client) run(ctx context.Context, env []string, args ...string) ([]byte, []byte, error) {
	return c.Runner.Run(ctx, args, c.RepoDir, env)
}

// StatusPorcelain runs `git status --porcelain`.
func (c *Client) StatusPorcelain(ctx context.Context) ([]byte, error) {
	out, _, err := c.run(ctx, nil, "status", "--porcelain")
	return out, err
}

// RevParse runs `git rev-parse <ref>`, trimming the trailing newline.
func (c *Client) RevParse(ctx context.Context, ref string) (string, error) {
	out, _, err := c.run(ctx, nil, "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return trimNewline(out), nil
}

// CommitSubject runs `git show -s --format=%B <ref>`, returning the
// full commit message body (the rollover engine only inspects its
// first line, but the whole body is returned for flexibility).
func (c *Client) CommitSubject(ctx context.Context, ref string) (string, error) {
	out, _, err := c.run(ctx, nil, "show", "-s", "--format=%B", ref)
	if err != nil {
		return "", err
	}
	return trimNewline(out), nil
}

// ResetSoft runs `git reset --soft <ref>`.
func (c *Client) ResetSoft(ctx context.Context, ref string) error {
	_, _, err := c.run(ctx, nil, "reset", "--soft", ref)
	return err
}

// Add runs `git add <path>`.
func (c *Client) Add(ctx context.Context, path string) error {
	_, _, err := c.run(ctx, nil, "add", path)
	return err
}

// AddAll runs `git add .`.
func (c *Client) AddAll(ctx context.Context) error {
	_, _, err := c.run(ctx, nil, "add", ".")
	return err
}

// RmCached runs `git rm --cached <path>`.
func (c *Client) RmCached(ctx context.Context, path string) error {
	_, _, err := c.run(ctx, nil, "rm", "--cached", path)
	return err
}

// Commit runs `git commit -m <message>`, forwarding the client's
// GIT_AUTHOR_*/GIT_COMMITTER_* environment overrides when set.
func (c *Client) Commit(ctx context.Context, message string) error {
	_, _, err := c.run(ctx, c.Env, "commit", "-m", message)
	return err
}

// PushLive runs `git push origin HEAD:live -f`, publishing the
// accumulated live-update commits.
func (c *Client) PushLive(ctx context.Context) error {
	_, _, err := c.run(ctx, nil, "push", "origin", "HEAD:live", "-f")
	return err
}

// PushMaster runs `git push origin HEAD:master` (fast-forward only).
func (c *Client) PushMaster(ctx context.Context) error {
	_, _, err := c.run(ctx, nil, "push", "origin", "HEAD:master")
	return err
}

func trimNewline(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
