package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"AUTH_SESSION_SECRET", "AUTH_SECRET", "JWT_SECRET", "APP_BASE_URL", "RATE_LIMIT_BACKEND"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.App.BaseURL)
	assert.Equal(t, "session_token", cfg.Auth.SessionCookieName)
	assert.Equal(t, "backend", cfg.Auth.ServiceNamespace)
	assert.Equal(t, 5, cfg.RateLimit.LoginMax)
	assert.Equal(t, 60, cfg.RateLimit.LoginWindowSeconds)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)

	require.Len(t, cfg.Auth.SessionSecrets, 3)
	assert.Equal(t, "AUTH_SESSION_SECRET", cfg.Auth.SessionSecrets[0].Name)
	assert.Equal(t, "JWT_SECRET", cfg.Auth.SessionSecrets[2].Name)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_BASE_URL", "https://app.example.com/")
	t.Setenv("AUTH_SECRET", "fallback")
	t.Setenv("APP_ENV", "staging")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.App.BaseURL)
	assert.Equal(t, "fallback", cfg.Auth.SessionSecrets[1].Value)
	assert.True(t, cfg.App.ProductionLike())
}

func TestValidate(t *testing.T) {
	t.Setenv("AUTH_SERVICE_NAMESPACE", "bad|namespace")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AUTH_SERVICE_NAMESPACE", "backend")
	t.Setenv("RATE_LIMIT_BACKEND", "memcached")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("APP_PROXY_HEADER", "X-Forwarded-For")
	t.Setenv("APP_TRUSTED_PROXIES", " 10.0.0.0/8, 192.168.1.1 ,,::1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1", "::1"}, cfg.App.TrustedProxies)

	t.Setenv("APP_TRUSTED_PROXIES", "10.0.0.0/8,proxy.internal")
	_, err = Load()
	assert.Error(t, err)
}
