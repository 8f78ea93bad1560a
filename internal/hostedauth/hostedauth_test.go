package hostedauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// setup stands in for the hosted provider's OAuth2 token endpoint, the
// same httptest harness shape used to test the ghclient REST wrapper.
func setup(t *testing.T) (provider *Provider, server *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.FormValue("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"access_token":"gho_test123","token_type":"bearer","refresh_token":"refresh_abc"}`)
	})

	Endpoint = oauth2.Endpoint{
		AuthURL:  server.URL + "/login/oauth/authorize",
		TokenURL: server.URL + "/login/oauth/access_token",
	}

	p := New("client-id", "client-secret", "http://localhost:8576/oauth/hosted/callback", []string{"repo"})
	return p, server
}

func TestAuthCodeURLIncludesClientID(t *testing.T) {
	p, _ := setup(t)
	u := p.AuthCodeURL("state-123")
	assert.Contains(t, u, "client_id=client-id")
	assert.Contains(t, u, "state=state-123")
}

func TestExchangeReturnsAccessToken(t *testing.T) {
	p, _ := setup(t)
	tok, err := p.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_test123", tok.AccessToken)
}

func TestResolveTokenWithPAT(t *testing.T) {
	token, err := ResolveToken(context.Background(), "pat:ghp_abcdef", func(ctx context.Context, ref string) (*oauth2.Token, error) {
		t.Fatal("resolver should not be called for a pat: ref")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ghp_abcdef", token)
}

func TestResolveTokenWithOAuthRef(t *testing.T) {
	token, err := ResolveToken(context.Background(), "oauth:session-1", func(ctx context.Context, ref string) (*oauth2.Token, error) {
		assert.Equal(t, "oauth:session-1", ref)
		return &oauth2.Token{AccessToken: "resolved-token"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resolved-token", token)
}

func TestResolveTokenRejectsEmptyRef(t *testing.T) {
	_, err := ResolveToken(context.Background(), "", func(ctx context.Context, ref string) (*oauth2.Token, error) {
		t.Fatal("resolver should not be called for an empty ref")
		return nil, nil
	})
	require.Error(t, err)
}
