package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/ghclient"
	"github.com/reviewdeck/reviewd/internal/gitutil"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
	"github.com/reviewdeck/reviewd/internal/store"
)

// sessionSnapshot is the JSON shape returned for a review-state
// snapshot: GET /api/sessions/:id.
type sessionSnapshot struct {
	Session    *store.Session      `json:"session"`
	Files      []backend.FileEntry `json:"files"`
	Diff       string              `json:"diff"`
	Unresolved int                 `json:"unresolved"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Sessions.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type createSessionRequest struct {
	RepoPath     string `json:"repo_path"`
	RepoPathDash string `json:"repo-path"`
	PRReference  string `json:"pr_reference"`
	TargetBranch string `json:"target_branch"`
}

func (req createSessionRequest) repoPath() string {
	if req.RepoPath != "" {
		return req.RepoPath
	}
	return req.RepoPathDash
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "invalid JSON body"))
		return
	}

	if req.PRReference != "" {
		sess, err := s.createHostedSession(r.Context(), req.PRReference, req.TargetBranch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess})
		return
	}

	repoPath := req.repoPath()
	if repoPath == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "repo_path is required"))
		return
	}
	if _, err := os.Stat(repoPath); err != nil {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "repo_path does not exist"))
		return
	}

	targetBranch := req.TargetBranch
	if targetBranch == "" {
		targetBranch = gitutil.DetectDefaultBranch(r.Context(), repoPath)
	}
	branch := gitutil.CurrentBranch(r.Context(), repoPath)
	project := filepath.Base(filepath.Clean(repoPath))

	sess, err := s.Sessions.GetOrCreateLocal(r.Context(), project, repoPath, branch, targetBranch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) createHostedSession(ctx context.Context, prRef, targetBranch string) (*store.Session, error) {
	ref, err := ghclient.ParsePRURL(prRef)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindValidation, err, "invalid pull request reference")
	}
	if targetBranch == "" {
		targetBranch = "main"
	}
	project := ref.Owner + "/" + ref.Repo
	return s.Sessions.GetOrCreateHosted(ctx, project, ref, targetBranch)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := s.Sessions.GetReviewState(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionSnapshot{Session: state.Session, Files: state.Files, Diff: state.Diff, Unresolved: state.Unresolved})
}

type patchSessionRequest struct {
	TargetBranch *string `json:"target_branch"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req patchSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "invalid JSON body"))
		return
	}
	if req.TargetBranch != nil {
		if err := s.Sessions.SetTargetBranch(r.Context(), id, *req.TargetBranch); err != nil {
			writeError(w, err)
			return
		}
		s.Events.Emit(id, "session-updated", map[string]any{"target_branch": *req.TargetBranch})
	}
	state, err := s.Sessions.GetReviewState(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionSnapshot{Session: state.Session, Files: state.Files, Diff: state.Diff, Unresolved: state.Unresolved})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Sessions.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionDiff(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := s.Sessions.GetReviewState(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	parsed := gitutil.Parse(state.Diff)
	changedFiles := make([]string, 0, len(state.Files))
	for _, f := range state.Files {
		changedFiles = append(changedFiles, f.Path)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diff":            state.Diff,
		"parsed":          parsed,
		"files":           state.Files,
		"files-with-size": len(state.Files),
		"changed-files":   changedFiles,
		"is-git-repo":     state.Session.BackendType == "local" && gitutil.IsGitRepo(r.Context(), state.Session.RepoPath),
	})
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, path := vars["id"], vars["path"]

	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.BackendType == "local" {
		if _, ok := resolveInRepo(sess.RepoPath, path); !ok {
			writeError(w, reviewerr.New(reviewerr.KindValidation, "path escapes repository root"))
			return
		}
	}

	side := backend.SideHead
	if r.URL.Query().Get("side") == "base" {
		side = backend.SideBase
	}
	content, found, err := s.Sessions.GetFileContent(r.Context(), id, path, side, nil, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": path, "found": found, "content": content})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, path := vars["id"], vars["path"]

	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.BackendType == "local" {
		if _, ok := resolveInRepo(sess.RepoPath, path); !ok {
			writeError(w, reviewerr.New(reviewerr.KindValidation, "path escapes repository root"))
			return
		}
	}

	from, to, ok := parseFromTo(r)
	if !ok {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "from/to must be integers >= 1 with from <= to"))
		return
	}

	content, found, err := s.Sessions.GetFileContent(r.Context(), id, path, backend.SideHead, &from, &to)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, reviewerr.New(reviewerr.KindNotFound, "file not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": path, "from": from, "to": to, "lines": splitIntoLineObjects(content, from)})
}

func parseFromTo(r *http.Request) (from, to int, ok bool) {
	fromStr, toStr := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	f, err1 := strconv.Atoi(fromStr)
	t, err2 := strconv.Atoi(toStr)
	if err1 != nil || err2 != nil || f < 1 || t < 1 || f > t {
		return 0, 0, false
	}
	return f, t, true
}

func splitIntoLineObjects(content string, from int) []map[string]any {
	var lines []map[string]any
	start, lineNo := 0, from
	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == '\n' {
			lines = append(lines, map[string]any{"line": lineNo, "content": content[start:i]})
			start = i + 1
			lineNo++
		}
	}
	return lines
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": gitutil.ListBranches(r.Context(), sess.RepoPath)})
}

func (s *Server) handleStaged(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staged": gitutil.Staged(r.Context(), sess.RepoPath)})
}

func (s *Server) handleUntracked(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"untracked": gitutil.Untracked(r.Context(), sess.RepoPath)})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req pathRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "path is required"))
		return
	}
	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := resolveInRepo(sess.RepoPath, req.Path); !ok {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "path escapes repository root"))
		return
	}
	if err := gitutil.Stage(r.Context(), sess.RepoPath, req.Path); err != nil {
		writeError(w, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to stage file"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManualAdd(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req pathRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "path is required"))
		return
	}
	if err := s.Sessions.ManualAdd(r.Context(), id, req.Path); err != nil {
		writeError(w, err)
		return
	}
	s.Events.Emit(id, "files-changed", map[string]any{"path": req.Path, "action": "manual-add"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManualRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req pathRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "path is required"))
		return
	}
	if err := s.Sessions.ManualRemove(r.Context(), id, req.Path); err != nil {
		writeError(w, err)
		return
	}
	s.Events.Emit(id, "files-changed", map[string]any{"path": req.Path, "action": "manual-remove"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestoreFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req pathRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "path is required"))
		return
	}
	if err := s.Sessions.RestoreFile(r.Context(), id, req.Path); err != nil {
		writeError(w, err)
		return
	}
	s.Events.Emit(id, "files-changed", map[string]any{"path": req.Path, "action": "restore"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.Coordinator == nil {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "push coordination is not configured"))
		return
	}
	state, err := s.Coordinator.Push(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pull_request": state})
}
