// Package hostedauth resolves the credential a hosted-backend session
// should authenticate with: either a directly-configured personal
// access token, or a token obtained through a delegated OAuth2 grant
// against the hosted provider. It is a contract-only wrapper: reviewd
// never completes a real browser redirect itself, it only issues the
// authorization URL and exchanges the code the external browser flow
// returns.
package hostedauth

import (
	"context"
	"strings"

	"golang.org/x/oauth2"

	"github.com/reviewdeck/reviewd/internal/reviewerr"
)

// Endpoint is the hosted provider's OAuth2 endpoint. It defaults to
// GitHub's, overridable for self-hosted GitHub Enterprise deployments.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://github.com/login/oauth/authorize",
	TokenURL: "https://github.com/login/oauth/access_token",
}

// Provider wraps an oauth2.Config for the delegated grant against the
// hosted provider.
type Provider struct {
	cfg *oauth2.Config
}

// New constructs a hostedauth Provider. redirectURL is the reviewd
// HTTP surface's own callback route, not a hosted-provider URL.
func New(clientID, clientSecret, redirectURL string, scopes []string) *Provider {
	return &Provider{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     Endpoint,
	}}
}

// AuthCodeURL returns the URL reviewd redirects the user's browser to
// in order to begin the delegated grant.
func (p *Provider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a hosted-provider token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to exchange authorization code with hosted provider")
	}
	return tok, nil
}

// ResolveToken returns the raw credential a hosted backend should send
// to the hosted provider's API, given a session's auth_token_ref. A
// ref prefixed with "pat:" is a directly-configured personal access
// token; anything else is looked up as an OAuth token via resolver.
func ResolveToken(ctx context.Context, ref string, resolver func(ctx context.Context, ref string) (*oauth2.Token, error)) (string, error) {
	if ref == "" {
		return "", reviewerr.New(reviewerr.KindValidation, "session has no auth_token_ref configured")
	}
	if pat, ok := strings.CutPrefix(ref, "pat:"); ok {
		return pat, nil
	}
	tok, err := resolver(ctx, ref)
	if err != nil {
		return "", err
	}
	if tok == nil || tok.AccessToken == "" {
		return "", reviewerr.New(reviewerr.KindNotFound, "no oauth token found for auth_token_ref")
	}
	return tok.AccessToken, nil
}
