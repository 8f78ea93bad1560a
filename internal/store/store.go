// Package store is reviewd's relational persistence layer: sessions,
// comments, users, and the OAuth provider's bookkeeping tables, all
// backed by an embedded SQLite database opened through the pure-Go
// ncruces/go-sqlite3 driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pkg/errors"

	"github.com/reviewdeck/reviewd/internal/idutil"
)

// Store wraps the SQLite connection pool and exposes the domain
// operations reviewd's other packages need.
type Store struct {
	db *sql.DB
}

// Open connects to (and, if necessary, creates) the SQLite database at
// path, applying the busy-timeout/WAL/foreign-key pragmas the same way
// untoldecay-BeadsLog composes its SQLite DSNs.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- sessions ---

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	registeredFiles, err := json.Marshal(sess.RegisteredFiles)
	if err != nil {
		return errors.Wrap(err, "failed to marshal registered files")
	}
	additions, err := json.Marshal(sess.ManualAdditions)
	if err != nil {
		return errors.Wrap(err, "failed to marshal manual additions")
	}
	removals, err := json.Marshal(sess.ManualRemovals)
	if err != nil {
		return errors.Wrap(err, "failed to marshal manual removals")
	}

	now := idutil.NowISO()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, backend_type, repo_path, owner, repo, pr_number, auth_token_ref,
			project, branch, target_branch, registered_files, manual_additions, manual_removals,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.BackendType, sess.RepoPath, sess.Owner, sess.Repo, sess.PRNumber, sess.AuthTokenRef,
		sess.Project, sess.Branch, sess.TargetBranch, string(registeredFiles), string(additions), string(removals),
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert session")
	}
	return nil
}

// GetSession fetches a session by id. Returns (nil, nil) if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, backend_type, repo_path, owner, repo, pr_number, auth_token_ref,
			project, branch, target_branch, registered_files, manual_additions, manual_removals,
			created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns every session, ordered by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend_type, repo_path, owner, repo, pr_number, auth_token_ref,
			project, branch, target_branch, registered_files, manual_additions, manual_removals,
			created_at, updated_at
		FROM sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query sessions")
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session; comments cascade via the foreign key.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}

// UpdateSessionOverlays persists the registered-files map and manual
// addition/removal sets for a session.
func (s *Store) UpdateSessionOverlays(ctx context.Context, sess *Session) error {
	registeredFiles, err := json.Marshal(sess.RegisteredFiles)
	if err != nil {
		return errors.Wrap(err, "failed to marshal registered files")
	}
	additions, err := json.Marshal(sess.ManualAdditions)
	if err != nil {
		return errors.Wrap(err, "failed to marshal manual additions")
	}
	removals, err := json.Marshal(sess.ManualRemovals)
	if err != nil {
		return errors.Wrap(err, "failed to marshal manual removals")
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET registered_files = ?, manual_additions = ?, manual_removals = ?, updated_at = ?
		WHERE id = ?`,
		string(registeredFiles), string(additions), string(removals), idutil.NowISO(), sess.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update session overlays")
	}
	return nil
}

// UpdateSessionTargetBranch changes the target branch a session diffs against.
func (s *Store) UpdateSessionTargetBranch(ctx context.Context, id, targetBranch string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET target_branch = ?, updated_at = ? WHERE id = ?`,
		targetBranch, idutil.NowISO(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update target branch")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var registeredFiles, additions, removals string
	err := row.Scan(&sess.ID, &sess.BackendType, &sess.RepoPath, &sess.Owner, &sess.Repo, &sess.PRNumber,
		&sess.AuthTokenRef, &sess.Project, &sess.Branch, &sess.TargetBranch,
		&registeredFiles, &additions, &removals, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan session")
	}

	sess.RegisteredFiles = map[string]string{}
	if registeredFiles != "" {
		if err := json.Unmarshal([]byte(registeredFiles), &sess.RegisteredFiles); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal registered files")
		}
	}
	if additions != "" {
		if err := json.Unmarshal([]byte(additions), &sess.ManualAdditions); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal manual additions")
		}
	}
	if removals != "" {
		if err := json.Unmarshal([]byte(removals), &sess.ManualRemovals); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal manual removals")
		}
	}
	return &sess, nil
}

// --- comments ---

// CreateComment inserts a new comment or reply.
func (s *Store) CreateComment(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = idutil.NewUUID()
	}
	now := idutil.NowISO()
	c.CreatedAt = now
	c.UpdatedAt = now

	var parentID any
	if c.ParentID != "" {
		parentID = c.ParentID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, session_id, parent_id, file, line, side, line_content,
			line_content_hash, context_before, context_after, author, resolved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, parentID, c.File, c.Line, c.Side, c.LineContent,
		c.LineContentHash, c.ContextBefore, c.ContextAfter, c.Author, boolToInt(c.Resolved),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert comment")
	}
	return nil
}

// GetComment fetches a single comment by id. Returns (nil, nil) if not found.
func (s *Store) GetComment(ctx context.Context, id string) (*Comment, error) {
	row := s.db.QueryRowContext(ctx, commentSelect+` WHERE id = ?`, id)
	return scanComment(row)
}

const commentSelect = `
	SELECT id, session_id, COALESCE(parent_id, ''), file, line, side, line_content,
		line_content_hash, context_before, context_after, author, resolved, created_at, updated_at
	FROM comments`

// ListComments returns every comment for a session, ordered by creation time.
func (s *Store) ListComments(ctx context.Context, sessionID string) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query comments")
	}
	defer rows.Close()

	var out []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCommentResolved updates the resolved flag on a comment.
func (s *Store) SetCommentResolved(ctx context.Context, id string, resolved bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET resolved = ?, updated_at = ? WHERE id = ?`,
		boolToInt(resolved), idutil.NowISO(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update comment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UnresolvedCount returns the number of unresolved comments (including
// replies) for a session.
func (s *Store) UnresolvedCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE session_id = ? AND resolved = 0`, sessionID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count unresolved comments")
	}
	return count, nil
}

func scanComment(row scanner) (*Comment, error) {
	var c Comment
	var resolved int
	err := row.Scan(&c.ID, &c.SessionID, &c.ParentID, &c.File, &c.Line, &c.Side, &c.LineContent,
		&c.LineContentHash, &c.ContextBefore, &c.ContextAfter, &c.Author, &resolved, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan comment")
	}
	c.Resolved = resolved != 0
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- users ---

// GetUserByAPIKey resolves the bearer token presented on the HTTP
// surface to a user. Returns (nil, nil) if no user matches.
func (s *Store) GetUserByAPIKey(ctx context.Context, apiKey string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email, name, COALESCE(api_key, '') FROM users WHERE api_key = ?`, apiKey)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.APIKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &u, nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = idutil.NewUUID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, name, api_key) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.APIKey)
	if err != nil {
		return errors.Wrap(err, "failed to insert user")
	}
	return nil
}
