// Package httpapi is reviewd's HTTP surface: the REST + SSE + JSON-RPC
// engine on top of internal/session, internal/eventbus, internal/pushgate
// and internal/pushcoordinator.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reviewdeck/reviewd/internal/eventbus"
	"github.com/reviewdeck/reviewd/internal/gitutil"
	"github.com/reviewdeck/reviewd/internal/oauth"
	"github.com/reviewdeck/reviewd/internal/pushcoordinator"
	"github.com/reviewdeck/reviewd/internal/session"
	"github.com/reviewdeck/reviewd/internal/store"
)

// ClientConfig is the client-safe configuration subset served from
// GET /api/config.
type ClientConfig struct {
	LargeFileThreshold int `json:"large_file_threshold"`
	LineCountThreshold int `json:"line_count_threshold"`
	ContextExpandSize  int `json:"context_expand_size"`
}

// Server is reviewd's HTTP surface, embedding every collaborator a
// handler needs as fields handlers close over.
type Server struct {
	Sessions    *session.Manager
	Events      *eventbus.Bus
	Coordinator *pushcoordinator.Coordinator
	OAuth       *oauth.Provider
	Store       *store.Store
	Log         *logrus.Entry
	ClientCfg   ClientConfig
}

// New constructs an httpapi Server.
func New(sessions *session.Manager, events *eventbus.Bus, coord *pushcoordinator.Coordinator, provider *oauth.Provider, st *store.Store, log *logrus.Entry, clientCfg ClientConfig) *Server {
	return &Server{Sessions: sessions, Events: events, Coordinator: coord, OAuth: provider, Store: st, Log: log, ClientCfg: clientCfg}
}

// Router builds the full mux.Router: a global logging middleware, an
// unauthenticated health probe, SSE stream and JSON-RPC endpoint, and a
// bearer-token-guarded subrouter for the REST surface. Request paths are
// not cleaned or redirected, so a path containing ".." reaches the
// handler's path-traversal guard.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().SkipClean(true)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.requireBearerToken)

	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handlePatchSession).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/diff", s.handleSessionDiff).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/file-content/{path:.*}", s.handleFileContent).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/context/{path:.*}", s.handleContext).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/branches", s.handleBranches).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/staged", s.handleStaged).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/untracked", s.handleUntracked).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/stage", s.handleStage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/manual-files", s.handleManualAdd).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/manual-files", s.handleManualRemove).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/restore-file", s.handleRestoreFile).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/push", s.handlePush).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/comments", s.handleListComments).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/comments", s.handleAddComment).Methods(http.MethodPost)
	api.HandleFunc("/comments/{id}/resolve", s.handleResolveComment).Methods(http.MethodPatch)
	api.HandleFunc("/comments/{id}/unresolve", s.handleUnresolveComment).Methods(http.MethodPatch)

	router.HandleFunc("/mcp", s.handleRPC).Methods(http.MethodPost)

	return router
}

// loggingMiddleware logs each request's method, path, status, and
// duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.Log != nil {
			s.Log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Debug("handled request")
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requireBearerToken checks the request's Authorization header against
// either an issued OAuth access token or a stored user API key.
func (s *Server) requireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}
		if s.OAuth != nil {
			if _, err := s.OAuth.Authenticate(r.Context(), token); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		if s.Store != nil {
			user, err := s.Store.GetUserByAPIKey(r.Context(), token)
			if err == nil && user != nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "Not authorized", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// handleHealth is the unauthenticated liveness probe over reviewd's
// store and git subsystems.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Healthy bool         `json:"healthy"`
		Store   HealthStatus `json:"store"`
		Git     HealthStatus `json:"git"`
	}{Healthy: true}

	if err := s.Store.Ping(r.Context()); err != nil {
		resp.Store = HealthStatus{OK: false, Message: err.Error()}
		resp.Healthy = false
	} else {
		resp.Store = HealthStatus{OK: true}
	}

	if gitutil.LooksAvailable() {
		resp.Git = HealthStatus{OK: true}
	} else {
		resp.Git = HealthStatus{OK: false, Message: "git executable not found on PATH"}
		resp.Healthy = false
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthStatus reports the health of a single subsystem.
type HealthStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ClientCfg)
}
