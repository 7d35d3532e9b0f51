package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	env := newTestEnv(t, false)
	token, err := env.srv.issueToken("Student@Example.COM")
	require.NoError(t, err)

	subject, err := env.srv.parseToken(token)
	require.NoError(t, err)
	require.Equal(t, "student@example.com", subject)
}

func TestTokenExpiry(t *testing.T) {
	env := newTestEnv(t, false)
	token, err := env.srv.issueToken("student@example.com")
	require.NoError(t, err)

	env.srv.now = func() time.Time { return time.Now().Add(sessionTTL + time.Hour) }
	_, err = env.srv.parseToken(token)
	require.Error(t, err)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	env := newTestEnv(t, false)
	other := newTestEnv(t, false)
	other.srv.sessionSecret = []byte("different-secret")

	token, err := env.srv.issueToken("student@example.com")
	require.NoError(t, err)
	_, err = other.srv.parseToken(token)
	require.Error(t, err)
}

func TestStaticAuthorizerNormalisesEmail(t *testing.T) {
	auth := &StaticAuthorizer{Allowed: map[string]bool{"student@example.com": true}}
	verdict, err := auth.Authorize(context.Background(), "  Student@Example.COM ")
	require.NoError(t, err)
	require.True(t, verdict.Authorized)

	verdict, err = auth.Authorize(context.Background(), "other@example.com")
	require.NoError(t, err)
	require.False(t, verdict.Authorized)
}

func TestHTTPAuthorizer(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/check-user", r.URL.Path)
		require.Equal(t, "Bearer backend-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"authorized":true,"userData":{"plan":"basic"}}`))
	}))
	defer backend.Close()

	auth := &HTTPAuthorizer{BaseURL: backend.URL, APIKey: "backend-key"}
	verdict, err := auth.Authorize(context.Background(), "student@example.com")
	require.NoError(t, err)
	require.True(t, verdict.Authorized)
	require.NotEmpty(t, verdict.UserData)
}

func TestHTTPAuthorizerNotFoundMeansUnauthorized(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer backend.Close()

	auth := &HTTPAuthorizer{BaseURL: backend.URL}
	verdict, err := auth.Authorize(context.Background(), "student@example.com")
	require.NoError(t, err)
	require.False(t, verdict.Authorized)
}

func TestHTTPAuthorizerUnconfigured(t *testing.T) {
	auth := &HTTPAuthorizer{}
	_, err := auth.Authorize(context.Background(), "student@example.com")
	require.ErrorIs(t, err, ErrAuthorizerUnconfigured)
}
