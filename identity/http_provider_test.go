package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/identity"
	"github.com/stretchr/testify/require"
)

func TestGetSession(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/session", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"expires_at":    expiresAt.Format(time.RFC3339),
			"user": map[string]any{
				"id":     "user-1",
				"email":  "john.doe@example.com",
				"locale": "en",
				"roles":  []any{"buyer", "seller", 42}, // Non-string entries are dropped
			},
		})
	}))
	defer server.Close()

	provider := identity.NewHTTPProvider(server.URL)
	session, err := provider.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "access-1", session.AccessToken)
	require.Equal(t, "refresh-1", session.RefreshToken)
	require.True(t, session.ExpiresAt.Equal(expiresAt))
	require.Equal(t, "user-1", session.User.ID)
	require.Equal(t, []string{"buyer", "seller"}, session.User.Roles)
}

func TestGetSessionAnonymous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	provider := identity.NewHTTPProvider(server.URL)
	session, err := provider.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestGetSessionExpiresIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"expires_in":   900,
		})
	}))
	defer server.Close()

	provider := identity.NewHTTPProvider(server.URL)
	session, err := provider.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	require.InDelta(t, 900, time.Until(session.ExpiresAt).Seconds(), 10)
}

func TestRefreshSessionRotatesRefreshToken(t *testing.T) {
	var receivedRefreshTokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/session/refresh", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		receivedRefreshTokens = append(receivedRefreshTokens, body["refresh_token"])

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + body["refresh_token"],
			"refresh_token": "rotated-" + body["refresh_token"],
		})
	}))
	defer server.Close()

	provider := identity.NewHTTPProvider(server.URL)
	provider.SetRefreshToken("seed")

	first, err := provider.RefreshSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-seed", first.AccessToken)

	// The second refresh must carry the rotated token from the first
	second, err := provider.RefreshSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-rotated-seed", second.AccessToken)
	require.Equal(t, []string{"seed", "rotated-seed"}, receivedRefreshTokens)
}

func TestRefreshSessionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := identity.NewHTTPProvider(server.URL)
	_, err := provider.RefreshSession(context.Background())
	require.Error(t, err)
}
