package session

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/backend"
	locbackend "github.com/reviewdeck/reviewd/internal/backend/local"
	"github.com/reviewdeck/reviewd/internal/store"
)

func newManagerWithRepo(t *testing.T) (*Manager, string, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("one\ntwo\n"), 0o644))
	run("add", "a.go")
	run("commit", "-m", "initial")

	st, err := store.Open(filepath.Join(t.TempDir(), "reviewd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	factory := func(sess *store.Session) (backend.Backend, error) {
		return locbackend.New(sess.ID, sess.RepoPath, sess.TargetBranch, st), nil
	}
	return New(st, factory, 5), dir, st
}

func TestGetOrCreateLocalIsDeterministic(t *testing.T) {
	m, dir, _ := newManagerWithRepo(t)
	ctx := context.Background()

	a, err := m.GetOrCreateLocal(ctx, "acme/web", dir, "feature/x", "main")
	require.NoError(t, err)
	b, err := m.GetOrCreateLocal(ctx, "acme/web", dir, "feature/x", "main")
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID)
}

func TestManualAddAndRemoveOverlays(t *testing.T) {
	m, dir, _ := newManagerWithRepo(t)
	ctx := context.Background()
	sess, err := m.GetOrCreateLocal(ctx, "acme/web", dir, "feature/x", "main")
	require.NoError(t, err)

	require.NoError(t, m.ManualAdd(ctx, sess.ID, "extra.go"))
	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Contains(t, got.ManualAdditions, "extra.go")

	require.NoError(t, m.ManualRemove(ctx, sess.ID, "extra.go"))
	got, err = m.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotContains(t, got.ManualAdditions, "extra.go")
	require.Contains(t, got.ManualRemovals, "extra.go")
}

func TestGetReviewStateReflectsUnresolvedCount(t *testing.T) {
	m, dir, _ := newManagerWithRepo(t)
	ctx := context.Background()
	sess, err := m.GetOrCreateLocal(ctx, "acme/web", dir, "feature/x", "main")
	require.NoError(t, err)

	_, err = m.AddComment(ctx, sess.ID, backend.AddCommentParams{File: "a.go", Line: 1, Side: "head", Author: "alice", Body: "hi"})
	require.NoError(t, err)

	state, err := m.GetReviewState(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, state.Unresolved)
}

func TestAddCommentRejectsUnknownParent(t *testing.T) {
	m, dir, _ := newManagerWithRepo(t)
	ctx := context.Background()
	sess, err := m.GetOrCreateLocal(ctx, "acme/web", dir, "feature/x", "main")
	require.NoError(t, err)

	_, err = m.AddComment(ctx, sess.ID, backend.AddCommentParams{ParentID: "nope", File: "a.go", Line: 1, Author: "alice", Body: "hi"})
	require.Error(t, err)
}
