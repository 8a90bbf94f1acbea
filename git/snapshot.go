package git

import (
	"context"
	"fmt"

	"github.com/grovetools/tracker/command"
)

// SnapshotRef returns a ref capturing the current working tree. It asks git
// for a dangling stash commit (which never touches the tree, index or
// branch) and falls back to HEAD when there is nothing to stash.
func (r *Reader) SnapshotRef(ctx context.Context, repoPath string) (string, error) {
	ref, err := r.git(ctx, repoPath, "stash", "create")
	if err == nil && ref != "" {
		return ref, nil
	}
	return r.HeadCommit(ctx, repoPath)
}

// HeadCommit returns the full hash of HEAD.
func (r *Reader) HeadCommit(ctx context.Context, repoPath string) (string, error) {
	head, err := r.git(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head, nil
}

// Diff returns the textual diff between two refs. Equal refs short-circuit
// to an empty diff without running git.
func (r *Reader) Diff(ctx context.Context, repoPath, baseRef, headRef string) (string, error) {
	if baseRef == headRef {
		return "", nil
	}
	for _, ref := range []string{baseRef, headRef} {
		if err := command.ValidateGitRef(ref); err != nil {
			return "", err
		}
	}
	out, err := r.run(ctx, repoPath, "diff", baseRef, headRef)
	if err != nil {
		return "", fmt.Errorf("diff %s..%s: %w", short(baseRef), short(headRef), err)
	}
	return out, nil
}

func short(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}
