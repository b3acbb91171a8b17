package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/login-gateway/internal/config"
)

func newTestServer(t *testing.T, environ map[string]string) *Server {
	t.Helper()

	base := map[string]string{
		"SESSION_SECRET":   "test-secret-at-least-16-chars!!",
		"DB_PATH":          ":memory:",
		"GOOGLE_CLIENT_ID": "google-client",
	}
	for k, v := range environ {
		base[k] = v
	}
	cfg, err := config.FromMap(base)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantLocation string
	}{
		{"login page", "/", http.StatusOK, ""},
		{"health", "/healthz", http.StatusOK, ""},
		{"old login path", "/login", http.StatusSeeOther, "/auth/google/login"},
		{"profile needs session", "/profile", http.StatusSeeOther, "/"},
		{"api needs session", "/api/me", http.StatusUnauthorized, ""},
		{"unconfigured provider", "/auth/spotify/login", http.StatusNotFound, ""},
		{"unknown provider", "/auth/github/login", http.StatusNotFound, ""},
		{"logout", "/logout", http.StatusSeeOther, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, srv, tt.path)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rr.Header().Get("Location"))
			}
		})
	}
}

func TestServer_GoogleLoginRedirect(t *testing.T) {
	srv := newTestServer(t, map[string]string{"BASE_URL": "https://login.example.com"})

	rr := get(t, srv, "/auth/google/login")

	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.Equal(t, "google-client", loc.Query().Get("client_id"))
	assert.Equal(t, "https://login.example.com/auth/google/callback", loc.Query().Get("redirect_uri"))
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestServer_HealthBody(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := get(t, srv, "/healthz")

	assert.JSONEq(t, `{"status":"OK","checks":{"database":"ok"}}`, rr.Body.String())
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{
		"SESSION_SECRET": "test-secret-at-least-16-chars!!",
		"DB_PATH":        ":memory:",
		"REDIS_URL":      "not a url",
	})
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	assert.ErrorContains(t, err, "REDIS_URL")
}
