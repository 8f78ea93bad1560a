package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
)

// CreateOAuthClient registers a new OAuth client application.
func (s *Store) CreateOAuthClient(ctx context.Context, c *OAuthClient) error {
	redirects, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal redirect uris")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO oauth_clients (id, secret, redirect_uris, name) VALUES (?, ?, ?, ?)`,
		c.ID, c.Secret, string(redirects), c.Name)
	if err != nil {
		return errors.Wrap(err, "failed to insert oauth client")
	}
	return nil
}

// GetOAuthClient fetches a registered client by id.
func (s *Store) GetOAuthClient(ctx context.Context, id string) (*OAuthClient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, secret, redirect_uris, name FROM oauth_clients WHERE id = ?`, id)
	var c OAuthClient
	var redirects string
	err := row.Scan(&c.ID, &c.Secret, &redirects, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query oauth client")
	}
	if err := json.Unmarshal([]byte(redirects), &c.RedirectURIs); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal redirect uris")
	}
	return &c, nil
}

// CreateOAuthAuthorization persists a pending authorization code.
func (s *Store) CreateOAuthAuthorization(ctx context.Context, a *OAuthAuthorization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_authorizations (code, client_id, redirect_uri, code_challenge,
			code_challenge_method, user_id, scope, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Code, a.ClientID, a.RedirectURI, a.CodeChallenge, a.CodeChallengeMethod, a.UserID, a.Scope, a.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert oauth authorization")
	}
	return nil
}

// ConsumeOAuthAuthorization fetches and deletes an authorization code in
// one step, so a code can never be exchanged twice.
func (s *Store) ConsumeOAuthAuthorization(ctx context.Context, code string) (*OAuthAuthorization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT code, client_id, redirect_uri, code_challenge, code_challenge_method, user_id, scope, expires_at
		FROM oauth_authorizations WHERE code = ?`, code)

	var a OAuthAuthorization
	err = row.Scan(&a.Code, &a.ClientID, &a.RedirectURI, &a.CodeChallenge, &a.CodeChallengeMethod,
		&a.UserID, &a.Scope, &a.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query oauth authorization")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_authorizations WHERE code = ?`, code); err != nil {
		return nil, errors.Wrap(err, "failed to delete oauth authorization")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return &a, nil
}

// CreateOAuthTokenPair persists a freshly issued access/refresh token pair.
func (s *Store) CreateOAuthTokenPair(ctx context.Context, access, refresh *OAuthToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oauth_tokens (token, kind, client_id, user_id, scope, expires_at, paired_token, revoked)
		VALUES (?, 'access', ?, ?, ?, ?, ?, 0)`,
		access.Token, access.ClientID, access.UserID, access.Scope, access.ExpiresAt, refresh.Token); err != nil {
		return errors.Wrap(err, "failed to insert access token")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oauth_tokens (token, kind, client_id, user_id, scope, expires_at, paired_token, revoked)
		VALUES (?, 'refresh', ?, ?, ?, ?, ?, 0)`,
		refresh.Token, refresh.ClientID, refresh.UserID, refresh.Scope, refresh.ExpiresAt, access.Token); err != nil {
		return errors.Wrap(err, "failed to insert refresh token")
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// GetOAuthToken fetches a token (access or refresh) by its value.
func (s *Store) GetOAuthToken(ctx context.Context, token string) (*OAuthToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, client_id, user_id, scope, expires_at, paired_token, revoked
		FROM oauth_tokens WHERE token = ?`, token)
	var t OAuthToken
	var revoked int
	err := row.Scan(&t.Token, &t.ClientID, &t.UserID, &t.Scope, &t.ExpiresAt, &t.Refresh, &revoked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query oauth token")
	}
	t.Revoked = revoked != 0
	return &t, nil
}

// RevokeOAuthToken marks a token, and its paired counterpart, revoked.
func (s *Store) RevokeOAuthToken(ctx context.Context, token string) error {
	t, err := s.GetOAuthToken(ctx, token)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE oauth_tokens SET revoked = 1 WHERE token = ? OR token = ?`, token, t.Refresh)
	if err != nil {
		return errors.Wrap(err, "failed to revoke oauth token")
	}
	return nil
}
