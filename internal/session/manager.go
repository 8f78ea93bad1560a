// Package session implements reviewd's session manager: file-set
// composition, comment thread assembly, and staleness annotation on top
// of the backend protocol.
package session

import (
	"context"
	"sync"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/ghclient"
	"github.com/reviewdeck/reviewd/internal/gitutil"
	"github.com/reviewdeck/reviewd/internal/idutil"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
	"github.com/reviewdeck/reviewd/internal/store"
)

// BackendFactory builds a backend.Backend for a persisted session,
// deferring the choice of local vs. hosted to the caller (internal/httpapi
// wires this against internal/backend/local and internal/backend/hosted).
type BackendFactory func(sess *store.Session) (backend.Backend, error)

// Manager aggregates the store and a cache of live backend handles; the
// mutex guards the cache.
type Manager struct {
	store       *store.Store
	newBackend  BackendFactory
	stalenessW  int
	onCreate    func(sess *store.Session)

	mu       sync.Mutex
	backends map[string]backend.Backend
}

// New constructs a session manager.
func New(st *store.Store, factory BackendFactory, stalenessWindow int) *Manager {
	if stalenessWindow <= 0 {
		stalenessWindow = 5
	}
	return &Manager{store: st, newBackend: factory, stalenessW: stalenessWindow, backends: map[string]backend.Backend{}}
}

// OnSessionCreated registers a hook invoked once, right after a brand
// new session is persisted (not on a GetOrCreate call that reuses an
// existing one). engine.New wires this to start a filesystem watch
// that feeds internal/eventbus for local sessions.
func (m *Manager) OnSessionCreated(hook func(sess *store.Session)) {
	m.onCreate = hook
}

func (m *Manager) backendFor(sess *store.Session) (backend.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.backends[sess.ID]; ok {
		return b, nil
	}
	b, err := m.newBackend(sess)
	if err != nil {
		return nil, err
	}
	m.backends[sess.ID] = b
	return b, nil
}

func (m *Manager) evict(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backends, sessionID)
}

// GetOrCreateLocal registers (or returns the existing) local session
// for a project/branch pair, keyed by a deterministic session ID
// derived from the project and branch.
func (m *Manager) GetOrCreateLocal(ctx context.Context, project, repoPath, branch, targetBranch string) (*store.Session, error) {
	id := idutil.SessionID(project, branch)
	existing, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	sess := &store.Session{
		ID: id, BackendType: "local", RepoPath: repoPath, Project: project,
		Branch: branch, TargetBranch: targetBranch,
		RegisteredFiles: map[string]string{},
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if m.onCreate != nil {
		m.onCreate(sess)
	}
	return sess, nil
}

// GetOrCreateHosted registers (or returns the existing) hosted session
// for a pull request reference.
func (m *Manager) GetOrCreateHosted(ctx context.Context, project string, ref *ghclient.PRReference, targetBranch string) (*store.Session, error) {
	branch := projectBranchForPR(ref)
	id := idutil.SessionID(project, branch)
	existing, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	sess := &store.Session{
		ID: id, BackendType: "hosted", Owner: ref.Owner, Repo: ref.Repo, PRNumber: ref.Number,
		Project: project, Branch: branch, TargetBranch: targetBranch,
		RegisteredFiles: map[string]string{},
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if m.onCreate != nil {
		m.onCreate(sess)
	}
	return sess, nil
}

func projectBranchForPR(ref *ghclient.PRReference) string {
	return ref.Owner + "/" + ref.Repo + "#" + itoa(ref.Number)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Get fetches a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, reviewerr.New(reviewerr.KindNotFound, "session not found")
	}
	return sess, nil
}

// ListAll returns every known session.
func (m *Manager) ListAll(ctx context.Context) ([]*store.Session, error) {
	return m.store.ListSessions(ctx)
}

// Delete removes a session and evicts its cached backend handle.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.evict(id)
	return nil
}

// RegisterFiles associates files with an agent id (e.g. files an AI
// coding agent is actively touching), adding them to the effective set.
func (m *Manager) RegisterFiles(ctx context.Context, id string, agentID string, paths []string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.RegisteredFiles == nil {
		sess.RegisteredFiles = map[string]string{}
	}
	for _, p := range paths {
		sess.RegisteredFiles[p] = agentID
	}
	return m.store.UpdateSessionOverlays(ctx, sess)
}

// UnregisterFiles removes files from the registered set.
func (m *Manager) UnregisterFiles(ctx context.Context, id string, paths []string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range paths {
		delete(sess.RegisteredFiles, p)
	}
	return m.store.UpdateSessionOverlays(ctx, sess)
}

// ManualAdd adds a file to the session's manual-addition overlay.
func (m *Manager) ManualAdd(ctx context.Context, id, path string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.ManualAdditions = appendUnique(sess.ManualAdditions, path)
	sess.ManualRemovals = removeFrom(sess.ManualRemovals, path)
	return m.store.UpdateSessionOverlays(ctx, sess)
}

// ManualRemove adds a file to the session's manual-removal overlay.
func (m *Manager) ManualRemove(ctx context.Context, id, path string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.ManualRemovals = appendUnique(sess.ManualRemovals, path)
	sess.ManualAdditions = removeFrom(sess.ManualAdditions, path)
	return m.store.UpdateSessionOverlays(ctx, sess)
}

// RestoreFile clears any manual overlay for a file, reverting to the
// backend's natural diff membership, and restores the working tree copy
// for local sessions.
func (m *Manager) RestoreFile(ctx context.Context, id, path string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.ManualAdditions = removeFrom(sess.ManualAdditions, path)
	sess.ManualRemovals = removeFrom(sess.ManualRemovals, path)
	if err := m.store.UpdateSessionOverlays(ctx, sess); err != nil {
		return err
	}
	if sess.BackendType == "local" {
		return gitutil.Restore(ctx, sess.RepoPath, path)
	}
	return nil
}

// SetTargetBranch updates the branch a session's diff is computed against.
func (m *Manager) SetTargetBranch(ctx context.Context, id, targetBranch string) error {
	return m.store.UpdateSessionTargetBranch(ctx, id, targetBranch)
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func removeFrom(list []string, item string) []string {
	out := list[:0:0]
	for _, existing := range list {
		if existing != item {
			out = append(out, existing)
		}
	}
	return out
}

// EffectiveFiles returns the backend's diff file list with the manual
// overlays applied: manual additions included even if the backend
// wouldn't show them, manual removals excluded even if it would.
func (m *Manager) EffectiveFiles(ctx context.Context, id string) ([]backend.FileEntry, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return nil, err
	}
	entries, err := b.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	removed := map[string]bool{}
	for _, p := range sess.ManualRemovals {
		removed[p] = true
	}
	present := map[string]bool{}
	var out []backend.FileEntry
	for _, e := range entries {
		present[e.Path] = true
		if removed[e.Path] {
			continue
		}
		out = append(out, e)
	}
	for _, p := range sess.ManualAdditions {
		if !present[p] && !removed[p] {
			out = append(out, backend.FileEntry{Path: p, Status: backend.StatusAdded})
		}
	}
	return out, nil
}

// ReviewState is the full review-state snapshot for a session:
// effective files, diff, and unresolved comment count.
type ReviewState struct {
	Session    *store.Session
	Files      []backend.FileEntry
	Diff       string
	Unresolved int
}

// GetReviewState returns the current review-state snapshot for a session.
func (m *Manager) GetReviewState(ctx context.Context, id string) (*ReviewState, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return nil, err
	}
	files, err := m.EffectiveFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	diff, err := b.GetDiff(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := m.store.UnresolvedCount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReviewState{Session: sess, Files: files, Diff: diff, Unresolved: unresolved}, nil
}

// GetFileContent reads content (optionally a line range) from a session's backend.
func (m *Manager) GetFileContent(ctx context.Context, id, file string, side backend.ContentSide, from, to *int) (string, bool, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return "", false, err
	}
	return b.GetFileContent(ctx, file, side, from, to)
}

// AddComment posts a new top-level comment or reply via a session's
// backend. A reply's parent must belong to the session, and a reply that
// omits its file or line takes them from the parent.
func (m *Manager) AddComment(ctx context.Context, id string, params backend.AddCommentParams) (backend.Comment, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return backend.Comment{}, err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return backend.Comment{}, err
	}
	if params.ParentID != "" {
		comments, err := b.ListComments(ctx)
		if err != nil {
			return backend.Comment{}, err
		}
		found := false
		for _, c := range comments {
			if c.ID == params.ParentID {
				found = true
				if params.File == "" {
					params.File = c.File
				}
				if params.Line == 0 {
					params.Line = c.Line
				}
				break
			}
		}
		if !found {
			return backend.Comment{}, reviewerr.New(reviewerr.KindValidation, "parent comment not found in session")
		}
	}
	return b.AddComment(ctx, params)
}

// ResolveComment marks a comment resolved via a session's backend.
func (m *Manager) ResolveComment(ctx context.Context, id, commentID string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return err
	}
	return b.ResolveComment(ctx, commentID)
}

// UnresolveComment marks a comment unresolved via a session's backend.
func (m *Manager) UnresolveComment(ctx context.Context, id, commentID string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return err
	}
	return b.UnresolveComment(ctx, commentID)
}

// GetThreads returns the session's comments assembled into threads with
// staleness annotations.
func (m *Manager) GetThreads(ctx context.Context, id string) ([]*Thread, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := m.backendFor(sess)
	if err != nil {
		return nil, err
	}
	comments, err := b.ListComments(ctx)
	if err != nil {
		return nil, err
	}
	threads := AssembleThreads(comments)
	AnnotateStaleness(ctx, threads, b, m.stalenessW)
	return threads, nil
}
