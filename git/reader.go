// Package git reads best-effort working-tree snapshots, diffs and branch
// state by shelling out to the git CLI under a hard timeout.
package git

import (
	"context"
	"strings"
	"time"

	"github.com/grovetools/tracker/command"
)

// DefaultTimeout bounds every git invocation made by a Reader.
const DefaultTimeout = 10 * time.Second

// Reader runs git commands against a repository path.
type Reader struct {
	runner  command.Runner
	timeout time.Duration
}

// NewReader creates a Reader. A zero timeout selects DefaultTimeout.
func NewReader(runner command.Runner, timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reader{runner: runner, timeout: timeout}
}

// git runs `git <args>` in repoPath and returns trimmed stdout.
func (r *Reader) git(ctx context.Context, repoPath string, args ...string) (string, error) {
	res, err := r.run(ctx, repoPath, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res), nil
}

// run returns raw stdout; diffs must keep their trailing newline.
func (r *Reader) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, command.Spec{
		Name:    "git",
		Args:    args,
		Dir:     repoPath,
		Timeout: r.timeout,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
