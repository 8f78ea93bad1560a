// Package engine wires reviewd's components into a running server: the
// single assembly point that builds the store, session manager, push
// gate and HTTP API from a loaded configuration and starts them.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/backend/hosted"
	"github.com/reviewdeck/reviewd/internal/backend/local"
	"github.com/reviewdeck/reviewd/internal/config"
	"github.com/reviewdeck/reviewd/internal/eventbus"
	"github.com/reviewdeck/reviewd/internal/ghclient"
	"github.com/reviewdeck/reviewd/internal/hostedauth"
	"github.com/reviewdeck/reviewd/internal/httpapi"
	"github.com/reviewdeck/reviewd/internal/oauth"
	"github.com/reviewdeck/reviewd/internal/pushcoordinator"
	"github.com/reviewdeck/reviewd/internal/pushgate"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
	"github.com/reviewdeck/reviewd/internal/session"
	"github.com/reviewdeck/reviewd/internal/store"
	"github.com/reviewdeck/reviewd/internal/watcher"
)

// Server bundles every long-lived collaborator New constructs, so Run
// can shut each down in the right order.
type Server struct {
	cfg    *config.Config
	log    *logrus.Logger
	store  *store.Store
	http   *http.Server
	events *eventbus.Bus
	watch  *watcher.Registry
}

// New assembles every reviewd collaborator from a loaded configuration,
// but does not start listening.
func New(cfg *config.Config) (*Server, error) {
	log := config.NewLogger(cfg)
	entry := log.WithField("component", "reviewd")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	events := eventbus.New()
	watch := watcher.NewRegistry(cfg.WatchDebounce, watcher.DefaultIgnore, entry.WithField("component", "watcher"))

	hostedClient := hostedGitHubFactory(cfg)
	mgr := session.New(st, backendFactory(st, hostedClient), cfg.StalenessWindow)
	mgr.OnSessionCreated(watchHook(watch, events, entry))

	gate := pushgate.New(cfg.PushAllow)
	coordinator := pushcoordinator.New(gate, hostedClient)

	oauthProvider := oauth.New(st, cfg.OAuthCodeTTL, cfg.OAuthAccessTokenTTL, cfg.OAuthRefreshTokenTTL)

	clientCfg := httpapi.ClientConfig{
		LargeFileThreshold: 100_000,
		LineCountThreshold: 2000,
		ContextExpandSize:  10,
	}
	api := httpapi.New(mgr, events, coordinator, oauthProvider, st, entry.WithField("component", "httpapi"), clientCfg)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}

	return &Server{cfg: cfg, log: log, store: st, http: srv, events: events, watch: watch}, nil
}

// Run starts the HTTP listener and blocks until ctx is cancelled, then
// drains the listener and closes the store.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.ListenAddr).Info("reviewd listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		s.watch.CloseAll()
		return s.store.Close()
	case err := <-errCh:
		s.watch.CloseAll()
		_ = s.store.Close()
		return err
	}
}

// backendFactory dispatches local-vs-hosted backend construction by the
// persisted session's BackendType, the single switch point every other
// package defers to rather than branching on backend kind itself.
func backendFactory(st *store.Store, hostedClient func(sess *store.Session) (ghclient.Client, error)) session.BackendFactory {
	return func(sess *store.Session) (backend.Backend, error) {
		switch sess.BackendType {
		case "hosted":
			client, err := hostedClient(sess)
			if err != nil {
				return nil, err
			}
			return hosted.New(sess.ID, sess.Owner, sess.Repo, sess.PRNumber, client), nil
		default:
			return local.New(sess.ID, sess.RepoPath, sess.TargetBranch, st), nil
		}
	}
}

// hostedGitHubFactory resolves the GitHub token for a hosted session:
// the session's AuthTokenRef when set, otherwise config.GitHubToken as a
// "pat:" ref. Only "pat:" refs resolve; any other ref is an error.
func hostedGitHubFactory(cfg *config.Config) func(sess *store.Session) (ghclient.Client, error) {
	var delegate *hostedauth.Provider
	if cfg.HostedClientID != "" {
		delegate = hostedauth.New(cfg.HostedClientID, cfg.HostedClientSecret, cfg.HostedRedirectURL, cfg.HostedScopes)
	}

	return func(sess *store.Session) (ghclient.Client, error) {
		ref := sess.AuthTokenRef
		if ref == "" && cfg.GitHubToken != "" {
			ref = "pat:" + cfg.GitHubToken
		}
		if ref == "" {
			return nil, reviewerr.New(reviewerr.KindValidation, "no GitHub token configured for hosted session")
		}

		token, err := hostedauth.ResolveToken(context.Background(), ref, func(ctx context.Context, r string) (*oauth2.Token, error) {
			if delegate == nil {
				return nil, reviewerr.New(reviewerr.KindValidation, "hosted OAuth is not configured")
			}
			return nil, reviewerr.New(reviewerr.KindValidation, "delegated hosted OAuth token refs are not yet resolvable")
		})
		if err != nil {
			return nil, err
		}

		client := ghclient.NewClient(token)
		if client == nil {
			return nil, reviewerr.New(reviewerr.KindValidation, "no GitHub token configured for hosted session")
		}
		return client, nil
	}
}

// watchHook starts a debounced filesystem watch for freshly-created
// local sessions, feeding changed paths into the event bus as
// "files-changed" events for subscribers to stream out over SSE.
func watchHook(reg *watcher.Registry, events *eventbus.Bus, log *logrus.Entry) func(sess *store.Session) {
	return func(sess *store.Session) {
		if sess.BackendType != "local" {
			return
		}
		_, err := reg.Subscribe(sess.RepoPath, func(paths []string) {
			events.Emit(sess.ID, "files-changed", map[string]any{"paths": paths, "action": "watch"})
		})
		if err != nil {
			log.WithError(err).WithField("session", sess.ID).Warn("failed to start filesystem watch")
		}
	}
}
