package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/idutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviewd.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:              idutil.SessionID("acme/web", "feature/x"),
		BackendType:     "local",
		RepoPath:        "/repos/web",
		Project:         "acme/web",
		Branch:          "feature/x",
		TargetBranch:    "main",
		RegisteredFiles: map[string]string{"a.go": "agent-1"},
		ManualAdditions: []string{"b.go"},
		ManualRemovals:  []string{},
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "local", got.BackendType)
	require.Equal(t, "agent-1", got.RegisteredFiles["a.go"])
	require.Equal(t, []string{"b.go"}, got.ManualAdditions)
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteSessionCascadesComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "sess-1", BackendType: "local", Project: "p", Branch: "b", TargetBranch: "main"}
	require.NoError(t, s.CreateSession(ctx, sess))

	c := &Comment{SessionID: sess.ID, File: "a.go", Line: 10, Side: "head", Author: "alice"}
	require.NoError(t, s.CreateComment(ctx, c))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	comments, err := s.ListComments(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, comments)
}

func TestCommentThreadAndResolve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "sess-2", BackendType: "local", Project: "p", Branch: "b", TargetBranch: "main"}
	require.NoError(t, s.CreateSession(ctx, sess))

	root := &Comment{SessionID: sess.ID, File: "a.go", Line: 5, Side: "head", Author: "alice"}
	require.NoError(t, s.CreateComment(ctx, root))

	reply := &Comment{SessionID: sess.ID, ParentID: root.ID, File: "a.go", Line: 5, Side: "head", Author: "bob"}
	require.NoError(t, s.CreateComment(ctx, reply))

	count, err := s.UnresolvedCount(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, s.SetCommentResolved(ctx, root.ID, true))
	count, err = s.UnresolvedCount(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOAuthAuthorizationConsumedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := &OAuthClient{ID: "client-1", Secret: "secret", RedirectURIs: []string{"http://127.0.0.1:9999/cb"}}
	require.NoError(t, s.CreateOAuthClient(ctx, client))

	auth := &OAuthAuthorization{
		Code: "code-1", ClientID: client.ID, RedirectURI: client.RedirectURIs[0],
		CodeChallenge: "chal", CodeChallengeMethod: "S256", UserID: "user-1", ExpiresAt: idutil.NowISO(),
	}
	require.NoError(t, s.CreateOAuthAuthorization(ctx, auth))

	got, err := s.ConsumeOAuthAuthorization(ctx, "code-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	again, err := s.ConsumeOAuthAuthorization(ctx, "code-1")
	require.NoError(t, err)
	require.Nil(t, again)
}
