// Package oauth implements reviewd's contract-only OAuth 2.0 provider:
// client registration restricted to localhost/private redirect URIs,
// PKCE-verified authorization, and access/refresh token issuance and
// revocation. It is not wired to any real browser login flow; the
// authentication boundary is the opaque bearer-token check against the
// store's registered users.
package oauth

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/reviewdeck/reviewd/internal/idutil"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
	"github.com/reviewdeck/reviewd/internal/store"
)

var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("oauth: invalid private range literal: " + err.Error())
		}
		privateRanges = append(privateRanges, ipnet)
	}
}

// IsAllowedRedirectURI reports whether host resolves to localhost or an
// RFC-1918 private address, the only redirect targets this provider
// will register a client against.
func IsAllowedRedirectURI(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	for _, r := range privateRanges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// Provider implements the OAuth provider contract against the shared
// sqlite store.
type Provider struct {
	store           *store.Store
	codeTTL         time.Duration
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// New constructs a Provider with the given token lifetimes.
func New(st *store.Store, codeTTL, accessTTL, refreshTTL time.Duration) *Provider {
	return &Provider{store: st, codeTTL: codeTTL, accessTokenTTL: accessTTL, refreshTokenTTL: refreshTTL}
}

// RegisterClient validates every redirect URI against
// IsAllowedRedirectURI and persists a new client with a generated
// secret.
func (p *Provider) RegisterClient(ctx context.Context, name string, redirectURIs []string) (*store.OAuthClient, error) {
	for _, raw := range redirectURIs {
		host, err := hostOf(raw)
		if err != nil || !IsAllowedRedirectURI(host) {
			return nil, reviewerr.New(reviewerr.KindValidation, "redirect_uri must be localhost or a private address: "+raw)
		}
	}
	client := &store.OAuthClient{
		ID:           idutil.NewUUID(),
		Secret:       idutil.NewToken(32),
		RedirectURIs: redirectURIs,
		Name:         name,
	}
	if err := p.store.CreateOAuthClient(ctx, client); err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindInternal, err, "failed to register oauth client")
	}
	return client, nil
}

// Authorize validates the client/redirect pair and issues a PKCE
// authorization code bound to userID, valid for codeTTL.
func (p *Provider) Authorize(ctx context.Context, clientID, redirectURI, codeChallenge, codeChallengeMethod, userID, scope string) (string, error) {
	client, err := p.store.GetOAuthClient(ctx, clientID)
	if err != nil {
		return "", reviewerr.Wrap(reviewerr.KindInternal, err, "failed to load oauth client")
	}
	if client == nil {
		return "", reviewerr.New(reviewerr.KindNotFound, "unknown client_id")
	}
	if !containsStr(client.RedirectURIs, redirectURI) {
		return "", reviewerr.New(reviewerr.KindValidation, "redirect_uri does not match registered client")
	}
	if codeChallengeMethod != "S256" {
		return "", reviewerr.New(reviewerr.KindValidation, "only S256 code_challenge_method is supported")
	}
	if codeChallenge == "" {
		return "", reviewerr.New(reviewerr.KindValidation, "code_challenge is required")
	}

	code := idutil.NewToken(32)
	auth := &store.OAuthAuthorization{
		Code:                code,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		UserID:              userID,
		Scope:               scope,
		ExpiresAt:           idutil.FormatISO(time.Now().Add(p.codeTTL)),
	}
	if err := p.store.CreateOAuthAuthorization(ctx, auth); err != nil {
		return "", reviewerr.Wrap(reviewerr.KindInternal, err, "failed to persist authorization code")
	}
	return code, nil
}

// TokenPair is an issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
}

// Exchange consumes an authorization code (PKCE-verified against
// verifier) and issues a fresh token pair. A code can be exchanged at
// most once.
func (p *Provider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenPair, error) {
	auth, err := p.store.ConsumeOAuthAuthorization(ctx, code)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindInternal, err, "failed to load authorization code")
	}
	if auth == nil {
		return nil, reviewerr.New(reviewerr.KindNotFound, "unknown or already-consumed authorization code")
	}
	expiresAt, err := idutil.ParseISO(auth.ExpiresAt)
	if err != nil || time.Now().After(expiresAt) {
		return nil, reviewerr.New(reviewerr.KindValidation, "authorization code has expired")
	}
	if auth.RedirectURI != redirectURI {
		return nil, reviewerr.New(reviewerr.KindValidation, "redirect_uri does not match the authorization request")
	}
	if idutil.Challenge(verifier) != auth.CodeChallenge {
		return nil, reviewerr.New(reviewerr.KindValidation, "code_verifier does not match code_challenge")
	}

	return p.issueTokenPair(ctx, auth.ClientID, auth.UserID, auth.Scope)
}

// Refresh exchanges a still-valid refresh token for a new token pair,
// revoking the old pair.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tok, err := p.store.GetOAuthToken(ctx, refreshToken)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindInternal, err, "failed to load refresh token")
	}
	if tok == nil || tok.Revoked {
		return nil, reviewerr.New(reviewerr.KindNotFound, "unknown or revoked refresh token")
	}
	expiresAt, err := idutil.ParseISO(tok.ExpiresAt)
	if err != nil || time.Now().After(expiresAt) {
		return nil, reviewerr.New(reviewerr.KindValidation, "refresh token has expired")
	}
	if err := p.store.RevokeOAuthToken(ctx, refreshToken); err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindInternal, err, "failed to revoke prior token pair")
	}
	return p.issueTokenPair(ctx, tok.ClientID, tok.UserID, tok.Scope)
}

// Revoke revokes a token and its paired counterpart. tokenTypeHint
// ("access_token" | "refresh_token") is accepted for RFC 7009
// compliance but ignored: RevokeOAuthToken resolves the pair either way.
func (p *Provider) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	_ = tokenTypeHint
	if err := p.store.RevokeOAuthToken(ctx, token); err != nil {
		return reviewerr.Wrap(reviewerr.KindInternal, err, "failed to revoke token")
	}
	return nil
}

// Authenticate resolves a bearer access token to its owning user id,
// the opaque authentication boundary this provider exposes to the rest
// of the server.
func (p *Provider) Authenticate(ctx context.Context, accessToken string) (string, error) {
	tok, err := p.store.GetOAuthToken(ctx, accessToken)
	if err != nil {
		return "", reviewerr.Wrap(reviewerr.KindInternal, err, "failed to load access token")
	}
	if tok == nil || tok.Revoked {
		return "", reviewerr.New(reviewerr.KindPermissionDenied, "invalid or revoked access token")
	}
	expiresAt, err := idutil.ParseISO(tok.ExpiresAt)
	if err != nil || time.Now().After(expiresAt) {
		return "", reviewerr.New(reviewerr.KindPermissionDenied, "access token has expired")
	}
	return tok.UserID, nil
}

func (p *Provider) issueTokenPair(ctx context.Context, clientID, userID, scope string) (*TokenPair, error) {
	access := &store.OAuthToken{
		Token:     idutil.NewToken(32),
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		ExpiresAt: idutil.FormatISO(time.Now().Add(p.accessTokenTTL)),
	}
	refresh := &store.OAuthToken{
		Token:     idutil.NewToken(32),
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		ExpiresAt: idutil.FormatISO(time.Now().Add(p.refreshTokenTTL)),
	}
	if err := p.store.CreateOAuthTokenPair(ctx, access, refresh); err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindInternal, err, "failed to persist token pair")
	}
	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresIn:    int(p.accessTokenTTL.Seconds()),
		TokenType:    "bearer",
	}, nil
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

func containsStr(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
