package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "/webdav", cfg.WebDAV.Prefix)
	assert.Equal(t, 30*time.Second, cfg.WebDAV.RequestTimeout)
	assert.Equal(t, int64(1<<20), cfg.WebDAV.MaxRequestBytes)
	assert.Equal(t, int64(3600), cfg.WebDAV.DefaultLockTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "WebDAV", cfg.Auth.Realm)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_MODE", "release")
	t.Setenv("REQUEST_TIMEOUT_MS", "1500")
	t.Setenv("AUTH_USERS", "alice:$2a$10$hash1,bob:$2a$10$hash2")
	t.Setenv("CUSTOM_RESPONSE_HEADERS", "X-Server=minidav,X-Env=test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 1500*time.Millisecond, cfg.WebDAV.RequestTimeout)
	assert.Equal(t, "$2a$10$hash1", cfg.Auth.Users["alice"])
	assert.Equal(t, "$2a$10$hash2", cfg.Auth.Users["bob"])
	assert.Equal(t, "minidav", cfg.CustomHeaders["X-Server"])
	assert.Equal(t, "test", cfg.CustomHeaders["X-Env"])
}

func TestParsePairsSkipsMalformed(t *testing.T) {
	out := parsePairs("good:1, :broken, alsogood:2, junk", ":")
	assert.Equal(t, map[string]string{"good": "1", "alsogood": "2"}, out)
}
