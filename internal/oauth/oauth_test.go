package oauth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/idutil"
	"github.com/reviewdeck/reviewd/internal/store"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, 600*time.Second, time.Hour, 30*24*time.Hour)
}

func TestIsAllowedRedirectURI(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected bool
	}{
		{name: "localhost", host: "localhost", expected: true},
		{name: "loopback ip", host: "127.0.0.1", expected: true},
		{name: "rfc1918 192.168", host: "192.168.1.20", expected: true},
		{name: "rfc1918 10.x", host: "10.0.0.5", expected: true},
		{name: "rfc1918 172.16-31", host: "172.20.0.1", expected: true},
		{name: "public ip", host: "8.8.8.8", expected: false},
		{name: "public host", host: "example.com", expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, IsAllowedRedirectURI(tt.host))
		})
	}
}

func TestRegisterClientRejectsPublicRedirect(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.RegisterClient(context.Background(), "agent", []string{"https://example.com/callback"})
	require.Error(t, err)
}

func TestAuthorizeExchangeFlow(t *testing.T) {
	p := newTestProvider(t)
	client, err := p.RegisterClient(context.Background(), "local-agent", []string{"http://localhost:8765/cb"})
	require.NoError(t, err)

	verifier := idutil.NewToken(32)
	challenge := idutil.Challenge(verifier)

	code, err := p.Authorize(context.Background(), client.ID, "http://localhost:8765/cb", challenge, "S256", "user-1", "review")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	pair, err := p.Exchange(context.Background(), code, verifier, "http://localhost:8765/cb")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	userID, err := p.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)

	_, err = p.Exchange(context.Background(), code, verifier, "http://localhost:8765/cb")
	require.Error(t, err, "authorization codes must not be exchangeable twice")
}

func TestExchangeRejectsWrongVerifier(t *testing.T) {
	p := newTestProvider(t)
	client, err := p.RegisterClient(context.Background(), "local-agent", []string{"http://localhost:8765/cb"})
	require.NoError(t, err)

	challenge := idutil.Challenge(idutil.NewToken(32))
	code, err := p.Authorize(context.Background(), client.ID, "http://localhost:8765/cb", challenge, "S256", "user-1", "review")
	require.NoError(t, err)

	_, err = p.Exchange(context.Background(), code, "wrong-verifier", "http://localhost:8765/cb")
	require.Error(t, err)
}

func TestRefreshRevokesPriorPair(t *testing.T) {
	p := newTestProvider(t)
	client, err := p.RegisterClient(context.Background(), "local-agent", []string{"http://localhost:8765/cb"})
	require.NoError(t, err)

	verifier := idutil.NewToken(32)
	code, err := p.Authorize(context.Background(), client.ID, "http://localhost:8765/cb", idutil.Challenge(verifier), "S256", "user-1", "review")
	require.NoError(t, err)
	first, err := p.Exchange(context.Background(), code, verifier, "http://localhost:8765/cb")
	require.NoError(t, err)

	second, err := p.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	_, err = p.Authenticate(context.Background(), first.AccessToken)
	require.Error(t, err, "old access token should be revoked after refresh")
}

func TestRevokeInvalidatesAccessToken(t *testing.T) {
	p := newTestProvider(t)
	client, err := p.RegisterClient(context.Background(), "local-agent", []string{"http://localhost:8765/cb"})
	require.NoError(t, err)

	verifier := idutil.NewToken(32)
	code, err := p.Authorize(context.Background(), client.ID, "http://localhost:8765/cb", idutil.Challenge(verifier), "S256", "user-1", "review")
	require.NoError(t, err)
	pair, err := p.Exchange(context.Background(), code, verifier, "http://localhost:8765/cb")
	require.NoError(t, err)

	require.NoError(t, p.Revoke(context.Background(), pair.AccessToken, "access_token"))

	_, err = p.Authenticate(context.Background(), pair.AccessToken)
	require.Error(t, err)
}
