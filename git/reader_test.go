package git

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/tracker/command"
	"github.com/grovetools/tracker/command/mocks"
	"github.com/grovetools/tracker/testutil"
)

func newTestReader() *Reader {
	return NewReader(command.NewRunner(), 5*time.Second)
}

func TestSnapshotRef(t *testing.T) {
	ctx := context.Background()

	t.Run("clean tree falls back to HEAD", func(t *testing.T) {
		dir := t.TempDir()
		testutil.InitGitRepo(t, dir)
		r := newTestReader()

		head := testutil.RunGitCommand(t, dir, "rev-parse", "HEAD")
		ref, err := r.SnapshotRef(ctx, dir)
		require.NoError(t, err)
		assert.Equal(t, head, ref)
	})

	t.Run("dirty tree yields a stash commit without touching the tree", func(t *testing.T) {
		dir := t.TempDir()
		testutil.InitGitRepo(t, dir)
		r := newTestReader()

		head := testutil.RunGitCommand(t, dir, "rev-parse", "HEAD")
		testutil.WriteFile(t, dir, "README.md", "# Changed\n")

		ref, err := r.SnapshotRef(ctx, dir)
		require.NoError(t, err)
		assert.NotEqual(t, head, ref)

		// Working tree and branch are untouched
		assert.Equal(t, head, testutil.RunGitCommand(t, dir, "rev-parse", "HEAD"))
		assert.Contains(t, testutil.RunGitCommand(t, dir, "status", "--porcelain"), "README.md")
	})

	t.Run("non-git directory errors", func(t *testing.T) {
		testutil.RequireGit(t)
		_, err := newTestReader().SnapshotRef(ctx, t.TempDir())
		assert.Error(t, err)
	})
}

func TestDiffBetweenSnapshots(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.InitGitRepo(t, dir)
	r := newTestReader()

	base, err := r.SnapshotRef(ctx, dir)
	require.NoError(t, err)

	testutil.WriteFile(t, dir, "README.md", "# Test Project\nmore\n")
	head, err := r.SnapshotRef(ctx, dir)
	require.NoError(t, err)

	diff, err := r.Diff(ctx, dir, base, head)
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git a/README.md b/README.md")
	assert.Contains(t, diff, "+more")
}

func TestDiffSameRefSkipsGit(t *testing.T) {
	runner := &mocks.MockRunner{}
	r := NewReader(runner, time.Second)

	diff, err := r.Diff(context.Background(), "/repo", "abc123", "abc123")
	require.NoError(t, err)
	assert.Empty(t, diff)
	assert.Empty(t, runner.Calls(), "equal refs must not spawn git")
}

func TestDiffRejectsOptionLikeRefs(t *testing.T) {
	runner := &mocks.MockRunner{}
	r := NewReader(runner, time.Second)

	_, err := r.Diff(context.Background(), "/repo", "--output=/tmp/x", "HEAD")
	assert.Error(t, err)
	assert.Empty(t, runner.Calls())
}

func TestGetState(t *testing.T) {
	ctx := context.Background()

	t.Run("no upstream", func(t *testing.T) {
		dir := t.TempDir()
		testutil.InitGitRepo(t, dir)

		st := newTestReader().GetState(ctx, dir)
		assert.Empty(t, st.Error)
		assert.Equal(t, "main", st.Branch)
		assert.Len(t, st.HeadCommit, 40)
		assert.Empty(t, st.Upstream)
		assert.Nil(t, st.Ahead)
		assert.Nil(t, st.Behind)
		assert.False(t, st.Dirty)
	})

	t.Run("ahead of upstream", func(t *testing.T) {
		remote := t.TempDir()
		testutil.RequireGit(t)
		testutil.RunGitCommand(t, remote, "init", "--bare")

		dir := t.TempDir()
		testutil.InitGitRepo(t, dir)
		testutil.RunGitCommand(t, dir, "remote", "add", "origin", remote)
		testutil.RunGitCommand(t, dir, "push", "-u", "origin", "main")
		testutil.CreateCommit(t, dir, "a.txt", "a\n")
		testutil.CreateCommit(t, dir, "b.txt", "b\n")

		st := newTestReader().GetState(ctx, dir)
		assert.Empty(t, st.Error)
		assert.Equal(t, "origin/main", st.Upstream)
		require.NotNil(t, st.Ahead)
		require.NotNil(t, st.Behind)
		assert.Equal(t, 2, *st.Ahead)
		assert.Equal(t, 0, *st.Behind)
		assert.Len(t, st.Commits, 2)
	})

	t.Run("broken repo is a field error", func(t *testing.T) {
		testutil.RequireGit(t)
		st := newTestReader().GetState(ctx, t.TempDir())
		assert.NotEmpty(t, st.Error)
	})
}

func TestParseStatus(t *testing.T) {
	out := "# branch.oid 1111111111111111111111111111111111111111\n" +
		"# branch.head feature/x\n" +
		"# branch.upstream origin/feature/x\n" +
		"# branch.ab +3 -1\n" +
		"1 .M N... 100644 100644 100644 abc abc file.go\n"

	var st State
	parseStatus(out, &st)
	assert.Equal(t, "feature/x", st.Branch)
	assert.Equal(t, "origin/feature/x", st.Upstream)
	assert.Equal(t, 3, *st.Ahead)
	assert.Equal(t, 1, *st.Behind)
	assert.True(t, st.Dirty)
	assert.Equal(t, "1111111111111111111111111111111111111111", st.HeadCommit)

	var initial State
	parseStatus("# branch.oid (initial)\n# branch.head main\n", &initial)
	assert.Empty(t, initial.HeadCommit)
	assert.Equal(t, "main", initial.Branch)
}
