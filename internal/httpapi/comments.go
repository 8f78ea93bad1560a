package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
	"github.com/reviewdeck/reviewd/internal/session"
)

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	threads, err := s.Sessions.GetThreads(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		writeJSON(w, http.StatusOK, map[string]any{"comments": threads})
		return
	}

	matched := make([]*session.Thread, 0, len(threads))
	for _, t := range threads {
		if t.Comment.File == file {
			matched = append(matched, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": matched})
}

type addCommentRequest struct {
	ParentID string `json:"parent_id"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Side     string `json:"side"`
	Author   string `json:"author"`
	Text     string `json:"text"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req addCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "invalid JSON body"))
		return
	}
	if req.Author == "" || req.Text == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "author and text are required"))
		return
	}

	comment, err := s.Sessions.AddComment(r.Context(), id, backend.AddCommentParams{
		ParentID: req.ParentID,
		File:     req.File,
		Line:     req.Line,
		Side:     req.Side,
		Author:   req.Author,
		Body:     req.Text,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.Events.Emit(id, "comment-added", comment)
	writeJSON(w, http.StatusOK, map[string]any{"comment": comment})
}

type resolveCommentRequest struct {
	Author string `json:"author"`
}

func (s *Server) handleResolveComment(w http.ResponseWriter, r *http.Request) {
	commentID := mux.Vars(r)["id"]
	var req resolveCommentRequest
	_ = decodeJSON(r, &req)

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "session_id query parameter is required"))
		return
	}
	if err := s.Sessions.ResolveComment(r.Context(), sessionID, commentID); err != nil {
		writeError(w, err)
		return
	}
	s.Events.Emit(sessionID, "comment-resolved", map[string]any{"comment_id": commentID, "author": req.Author})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnresolveComment(w http.ResponseWriter, r *http.Request) {
	commentID := mux.Vars(r)["id"]
	var req resolveCommentRequest
	_ = decodeJSON(r, &req)

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, reviewerr.New(reviewerr.KindValidation, "session_id query parameter is required"))
		return
	}
	if err := s.Sessions.UnresolveComment(r.Context(), sessionID, commentID); err != nil {
		writeError(w, err)
		return
	}
	s.Events.Emit(sessionID, "comment-unresolved", map[string]any{"comment_id": commentID, "author": req.Author})
	w.WriteHeader(http.StatusNoContent)
}
