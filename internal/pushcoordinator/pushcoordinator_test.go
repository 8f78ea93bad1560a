package pushcoordinator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/ghclient"
	"github.com/reviewdeck/reviewd/internal/pushgate"
	"github.com/reviewdeck/reviewd/internal/store"
)

// fakeGHClient is a hand-rolled stand-in for ghclient.Client, used to
// drive the find-or-create branch of the coordinator without a real
// GitHub endpoint.
type fakeGHClient struct {
	existingPR *github.PullRequest
	created    *github.PullRequest
	createCall int
}

func (f *fakeGHClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	return f.existingPR, nil
}
func (f *fakeGHClient) GetPullRequestByBranch(ctx context.Context, owner, repo, branch string) (*github.PullRequest, error) {
	return f.existingPR, nil
}
func (f *fakeGHClient) ListFiles(ctx context.Context, owner, repo string, number int) ([]*github.CommitFile, error) {
	return nil, nil
}
func (f *fakeGHClient) GetDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	return "", nil
}
func (f *fakeGHClient) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestComment, error) {
	return nil, nil
}
func (f *fakeGHClient) CreatePullRequest(ctx context.Context, owner, repo, title, head, base string) (*github.PullRequest, error) {
	f.createCall++
	return f.created, nil
}
func (f *fakeGHClient) GetFileContentAtRef(ctx context.Context, owner, repo, path, ref string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeGHClient) AddReviewThread(ctx context.Context, owner, repo string, number int, in ghclient.AddReviewThreadInput) (*ghclient.ReviewThread, error) {
	return nil, nil
}
func (f *fakeGHClient) ReplyToReviewThread(ctx context.Context, threadID, body string) (*ghclient.ReviewThread, error) {
	return nil, nil
}
func (f *fakeGHClient) ResolveReviewThread(ctx context.Context, threadID string) error   { return nil }
func (f *fakeGHClient) UnresolveReviewThread(ctx context.Context, threadID string) error { return nil }
func (f *fakeGHClient) RateLimit() ghclient.RateLimitState                              { return ghclient.RateLimitState{} }

func initRepoWithRemote(t *testing.T) (dir, remote string) {
	t.Helper()
	remoteDir := t.TempDir()
	requireRun(t, remoteDir, "init", "--bare", "-b", "main")

	dir = t.TempDir()
	requireRun(t, dir, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	requireRun(t, dir, "add", "a.go")
	requireRun(t, dir, "commit", "-m", "initial")
	requireRun(t, dir, "remote", "add", "origin", remoteDir)
	requireRun(t, dir, "push", "-u", "origin", "main")
	requireRun(t, dir, "checkout", "-b", "feature/x")
	return dir, remoteDir
}

func requireRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestPushLocalSucceedsAndFindsNoHostedClient(t *testing.T) {
	dir, _ := initRepoWithRemote(t)
	gate := pushgate.New(map[string][]string{"*/*": {"*"}})
	coord := New(gate, nil)

	sess := &store.Session{BackendType: "local", RepoPath: dir, Branch: "feature/x", TargetBranch: "main"}
	state, err := coord.Push(context.Background(), sess)
	require.NoError(t, err)
	assert.Nil(t, state, "no ghFactory configured, so no PR reconciliation is attempted")
}

func TestPushDeniedByGate(t *testing.T) {
	dir, _ := initRepoWithRemote(t)
	gate := pushgate.New(map[string][]string{"acme/locked": {"main"}})
	coord := New(gate, nil)

	sess := &store.Session{BackendType: "local", RepoPath: dir, Branch: "feature/x", TargetBranch: "main"}
	_, err := coord.Push(context.Background(), sess)
	require.Error(t, err)
}

func TestPushCreatesHostedPRWhenNoneExists(t *testing.T) {
	dir, remoteDir := initRepoWithRemote(t)
	requireRun(t, dir, "remote", "set-url", "origin", "git@github.com:acme/web.git")
	_ = remoteDir

	fake := &fakeGHClient{created: &github.PullRequest{Number: github.Ptr(9), State: github.Ptr("open"), HTMLURL: github.Ptr("https://github.com/acme/web/pull/9")}}
	gate := pushgate.New(map[string][]string{"acme/web": {"feature/*"}})
	coord := New(gate, func(sess *store.Session) (ghclient.Client, error) { return fake, nil })

	sess := &store.Session{BackendType: "local", RepoPath: dir, Branch: "feature/x", TargetBranch: "main"}
	state, err := coord.Push(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 9, state.Number)
	assert.Equal(t, 1, fake.createCall)
}

func TestPushReusesExistingHostedPR(t *testing.T) {
	dir, remoteDir := initRepoWithRemote(t)
	requireRun(t, dir, "remote", "set-url", "origin", "git@github.com:acme/web.git")
	_ = remoteDir

	fake := &fakeGHClient{existingPR: &github.PullRequest{Number: github.Ptr(4), State: github.Ptr("open")}}
	gate := pushgate.New(map[string][]string{"acme/web": {"feature/*"}})
	coord := New(gate, func(sess *store.Session) (ghclient.Client, error) { return fake, nil })

	sess := &store.Session{BackendType: "local", RepoPath: dir, Branch: "feature/x", TargetBranch: "main"}
	state, err := coord.Push(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 4, state.Number)
	assert.Equal(t, 0, fake.createCall, "an existing open PR must not trigger creation")
}
