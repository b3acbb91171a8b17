package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-secret"

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{"SESSION_SECRET": testSecret})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "data/users.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.False(t, cfg.CookieSecure)
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.Spotify.Enabled())
	assert.Equal(t, "http://localhost:8080/auth/google/callback", cfg.Google.RedirectURI)
	assert.Equal(t, "http://localhost:8080/auth/spotify/callback", cfg.Spotify.RedirectURI)
}

func TestFromMap_ProvidersAndOverrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"SESSION_SECRET":       testSecret,
		"BASE_URL":             "https://login.example.com/",
		"GOOGLE_CLIENT_ID":     "gid",
		"GOOGLE_CLIENT_SECRET": "gsecret",
		"SPOTIFY_CLIENT_ID":    "sid",
		"SPOTIFY_REDIRECT_URI": "https://login.example.com/spotify/callback",
		"SESSION_TTL":          "2h",
		"COOKIE_SECURE":        "true",
		"DB_DRIVER":            "postgres",
		"DATABASE_URL":         "postgres://u:p@localhost/db",
		"REDIS_URL":            "redis://localhost:6379/0",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Google.Enabled())
	assert.Equal(t, "gsecret", cfg.Google.ClientSecret)
	assert.Equal(t, "https://login.example.com/auth/google/callback", cfg.Google.RedirectURI)
	assert.Equal(t, "https://login.example.com/spotify/callback", cfg.Spotify.RedirectURI)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{
			name:    "missing secret",
			environ: map[string]string{},
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "short secret",
			environ: map[string]string{"SESSION_SECRET": "short"},
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "unknown driver",
			environ: map[string]string{"SESSION_SECRET": testSecret, "DB_DRIVER": "mysql"},
			wantErr: "DB_DRIVER",
		},
		{
			name:    "postgres without url",
			environ: map[string]string{"SESSION_SECRET": testSecret, "DB_DRIVER": "postgres"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "bad duration",
			environ: map[string]string{"SESSION_SECRET": testSecret, "SESSION_TTL": "forever"},
			wantErr: "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.environ)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
