package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/backend"
	locbackend "github.com/reviewdeck/reviewd/internal/backend/local"
	"github.com/reviewdeck/reviewd/internal/eventbus"
	"github.com/reviewdeck/reviewd/internal/session"
	"github.com/reviewdeck/reviewd/internal/store"
)

// newTestServer wires a Server against a real sqlite store and a real
// one-commit git repository, the same fixture shape session.manager_test
// uses, so handlers exercise actual git plumbing rather than a fake.
func newTestServer(t *testing.T) (*Server, string) {
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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("one\ntwo\nthree\n"), 0o644))
	run("add", "a.go")
	run("commit", "-m", "initial")
	run("checkout", "-b", "feature/x")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("one\nTWO\nthree\n"), 0o644))
	run("commit", "-am", "edit")

	st, err := store.Open(filepath.Join(t.TempDir(), "reviewd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	factory := func(sess *store.Session) (backend.Backend, error) {
		return locbackend.New(sess.ID, sess.RepoPath, sess.TargetBranch, st), nil
	}
	mgr := session.New(st, factory, 5)
	events := eventbus.New()

	srv := New(mgr, events, nil, nil, st, nil, ClientConfig{LargeFileThreshold: 100, LineCountThreshold: 500, ContextExpandSize: 3})
	return srv, dir
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["healthy"])
}

func TestAPIRoutesRejectMissingBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRoutesAcceptValidAPIKey(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()

	user := &store.User{Name: "alice", Email: "alice@example.com", APIKey: "alice-key"}
	require.NoError(t, srv.Store.CreateUser(ctx, user))

	router := srv.Router()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(mustJSON(t, map[string]any{
		"repo_path":     dir,
		"target_branch": "main",
	})))
	req.Header.Set("Authorization", "Bearer alice-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["session"])
}

func TestCreateSessionAndAddComment(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, srv.Store.CreateUser(ctx, &store.User{Name: "bob", Email: "bob@example.com", APIKey: "bob-key"}))
	router := srv.Router()

	createRec := authedRequest(t, router, http.MethodPost, "/api/sessions", "bob-key", map[string]any{"repo_path": dir, "target_branch": "main"})
	require.Equal(t, http.StatusOK, createRec.Code)
	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Session.ID)

	addRec := authedRequest(t, router, http.MethodPost, "/api/sessions/"+created.Session.ID+"/comments", "bob-key", map[string]any{
		"file": "a.go", "line": 2, "side": "head", "author": "bob", "text": "looks off",
	})
	require.Equal(t, http.StatusOK, addRec.Code)

	listRec := authedRequest(t, router, http.MethodGet, "/api/sessions/"+created.Session.ID+"/comments", "bob-key", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var listed map[string]any
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	threads, ok := listed["comments"].([]any)
	require.True(t, ok)
	require.Len(t, threads, 1)
}

func TestDiffRouteRejectsPathEscape(t *testing.T) {
	srv, dir := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, srv.Store.CreateUser(ctx, &store.User{Name: "eve", Email: "eve@example.com", APIKey: "eve-key"}))
	router := srv.Router()

	createRec := authedRequest(t, router, http.MethodPost, "/api/sessions", "eve-key", map[string]any{"repo_path": dir, "target_branch": "main"})
	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	rec := authedRequest(t, router, http.MethodGet, "/api/sessions/"+created.Session.ID+"/file-content/../../etc/passwd", "eve-key", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRPCToolsListAndCall(t *testing.T) {
	srv, dir := newTestServer(t)
	router := srv.Router()

	listRec := doJSON(t, router, http.MethodPost, "/mcp", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	require.Equal(t, http.StatusOK, listRec.Code)
	var listResp struct {
		Result struct {
			Tools []string `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	require.Contains(t, listResp.Result.Tools, "add_comment")
	require.Contains(t, listResp.Result.Tools, "get_pending_feedback")

	callRec := doJSON(t, router, http.MethodPost, "/mcp", map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": map[string]any{
			"name": "get_or_create_session",
			"arguments": map[string]any{
				"repo_path":     dir,
				"target_branch": "main",
			},
		},
	})
	require.Equal(t, http.StatusOK, callRec.Code)
	var callResp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(callRec.Body.Bytes(), &callResp))
	require.Len(t, callResp.Result.Content, 1)
	require.Contains(t, callResp.Result.Content[0].Text, "target_branch")
}

func TestRPCUnknownToolReturnsError(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/mcp", map[string]any{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": map[string]any{"name": "not_a_real_tool", "arguments": map[string]any{}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp["error"])
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func authedRequest(t *testing.T, router http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(mustJSON(t, body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
