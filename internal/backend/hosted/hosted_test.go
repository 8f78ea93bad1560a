package hosted

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/ghclient"
)

func setup(t *testing.T) (*Backend, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	apiHandler := http.NewServeMux()
	apiHandler.Handle("/api-v3/", http.StripPrefix("/api-v3", mux))
	server := httptest.NewServer(apiHandler)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	u, _ := url.Parse(server.URL + "/api-v3/")
	gh.BaseURL = u

	client := ghclient.NewClientWithGitHub(gh, "test-token")
	return New("sess-1", "acme", "web", 42, client), mux
}

func TestListFilesMapsStatus(t *testing.T) {
	b, mux := setup(t)
	mux.HandleFunc("/repos/acme/web/pulls/42/files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"filename":"a.go","status":"added"},{"filename":"b.go","status":"removed"}]`)
	})

	files, err := b.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "added", string(files[0].Status))
	assert.Equal(t, "deleted", string(files[1].Status))
}

func TestRateLimitExhaustedBlocksCalls(t *testing.T) {
	b, mux := setup(t)
	mux.HandleFunc("/repos/acme/web/pulls/42/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "9999999999")
		_, _ = fmt.Fprint(w, `[{"filename":"a.go","status":"modified"}]`)
	})

	_, err := b.ListFiles(context.Background())
	require.NoError(t, err)

	_, err = b.ListFiles(context.Background())
	require.Error(t, err)
}

func TestGetFileContentFetchesHeadRefByDefault(t *testing.T) {
	b, mux := setup(t)
	mux.HandleFunc("/repos/acme/web/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"number":42,"head":{"sha":"headsha"},"base":{"sha":"basesha"}}`)
	})
	mux.HandleFunc("/repos/acme/web/contents/a.go", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "headsha", r.URL.Query().Get("ref"))
		_, _ = fmt.Fprint(w, `{"type":"file","encoding":"base64","content":"b25lCnR3bwp0aHJlZQ==\n"}`)
	})

	content, ok, err := b.GetFileContent(context.Background(), "a.go", backend.SideHead, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, content, "one")
}

func TestGetFileContentUsesBaseRefAndExtractsLines(t *testing.T) {
	b, mux := setup(t)
	mux.HandleFunc("/repos/acme/web/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"number":42,"head":{"sha":"headsha"},"base":{"sha":"basesha"}}`)
	})
	mux.HandleFunc("/repos/acme/web/contents/a.go", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "basesha", r.URL.Query().Get("ref"))
		_, _ = fmt.Fprint(w, `{"type":"file","encoding":"base64","content":"b25lCnR3bwp0aHJlZQ==\n"}`)
	})

	from, to := 2, 2
	content, ok, err := b.GetFileContent(context.Background(), "a.go", backend.SideBase, &from, &to)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", content)
}

func TestGetFileContentMissingFile(t *testing.T) {
	b, mux := setup(t)
	mux.HandleFunc("/repos/acme/web/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"number":42,"head":{"sha":"headsha"},"base":{"sha":"basesha"}}`)
	})
	mux.HandleFunc("/repos/acme/web/contents/missing.go", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	_, ok, err := b.GetFileContent(context.Background(), "missing.go", backend.SideHead, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddCommentReplyUsesThreadID(t *testing.T) {
	b, mux := setup(t)
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"data":{"addPullRequestReviewThreadReply":{"comment":{"pullRequestReviewThread":{"id":"thread-1","isResolved":false,"comments":{"nodes":[]}}}}}}`)
	})

	c, err := b.AddComment(context.Background(), backend.AddCommentParams{ParentID: "thread-0", Author: "bob", Body: "agreed"})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", c.ID)
}
