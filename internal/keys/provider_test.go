package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/spec-kit/token-bridge/internal/config"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

func rsaPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func ecPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func testConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: env},
		Auth: config.AuthConfig{
			SessionSecrets: []config.SecretCandidate{
				{Name: "AUTH_SESSION_SECRET"},
				{Name: "AUTH_SECRET"},
			},
			KeyRefreshSeconds: 60,
		},
	}
}

func TestParsePrivateKeyPEM(t *testing.T) {
	t.Run("rsa key uses RS256 and a stable thumbprint kid", func(t *testing.T) {
		pemBytes := rsaPEM(t)

		first, err := ParsePrivateKeyPEM(pemBytes, "")
		require.NoError(t, err)
		second, err := ParsePrivateKeyPEM(pemBytes, "")
		require.NoError(t, err)

		assert.Equal(t, "RS256", first.Algorithm())
		assert.NotEmpty(t, first.KeyID)
		assert.Equal(t, first.KeyID, second.KeyID)
	})

	t.Run("ec key uses ES256", func(t *testing.T) {
		material, err := ParsePrivateKeyPEM(ecPEM(t), "")
		require.NoError(t, err)
		assert.Equal(t, "ES256", material.Algorithm())
	})

	t.Run("configured kid wins over thumbprint", func(t *testing.T) {
		material, err := ParsePrivateKeyPEM(rsaPEM(t), "K1")
		require.NoError(t, err)
		assert.Equal(t, "K1", material.KeyID)
	})

	t.Run("different keys produce different kids", func(t *testing.T) {
		a, err := ParsePrivateKeyPEM(rsaPEM(t), "")
		require.NoError(t, err)
		b, err := ParsePrivateKeyPEM(rsaPEM(t), "")
		require.NoError(t, err)
		assert.NotEqual(t, a.KeyID, b.KeyID)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := ParsePrivateKeyPEM([]byte("not a key"), "")
		assert.Error(t, err)
	})

	t.Run("short rsa keys are rejected", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		_, err = ParsePrivateKeyPEM(pemBytes, "")
		assert.Error(t, err)
	})
}

func TestResolveSessionSecret(t *testing.T) {
	t.Run("primary variable wins", func(t *testing.T) {
		cfg := testConfig("production")
		cfg.Auth.SessionSecrets[0].Value = "primary"
		cfg.Auth.SessionSecrets[1].Value = "fallback"
		p, err := NewProvider(cfg, nil, nil)
		require.NoError(t, err)

		secret, err := p.ResolveSessionSecret()
		require.NoError(t, err)
		assert.Equal(t, "primary", string(secret))
		assert.Equal(t, "AUTH_SESSION_SECRET", p.SecretSource())
		assert.False(t, p.WeakSecret())
	})

	t.Run("fallback variable used when primary empty", func(t *testing.T) {
		cfg := testConfig("production")
		cfg.Auth.SessionSecrets[1].Value = "fallback"
		p, err := NewProvider(cfg, nil, nil)
		require.NoError(t, err)

		secret, err := p.ResolveSessionSecret()
		require.NoError(t, err)
		assert.Equal(t, "fallback", string(secret))
		assert.Equal(t, "AUTH_SECRET", p.SecretSource())
	})

	t.Run("development default is not weak outside production", func(t *testing.T) {
		p, err := NewProvider(testConfig("development"), nil, nil)
		require.NoError(t, err)

		secret, err := p.ResolveSessionSecret()
		require.NoError(t, err)
		assert.Equal(t, config.DevSessionSecret, string(secret))
		assert.False(t, p.WeakSecret())
	})

	t.Run("development default in production warns but succeeds", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		p, err := NewProvider(testConfig("production"), nil, zap.New(core))
		require.NoError(t, err)

		secret, err := p.ResolveSessionSecret()
		require.NoError(t, err)
		assert.Equal(t, config.DevSessionSecret, string(secret))
		assert.True(t, p.WeakSecret())

		_, _ = p.ResolveSessionSecret()
		warnings := logs.FilterMessageSnippet("WeakSecret").All()
		assert.Len(t, warnings, 1)
	})

	for _, env := range []string{"production", "development"} {
		t.Run("strict mode refuses the development default in "+env, func(t *testing.T) {
			cfg := testConfig(env)
			cfg.Auth.StrictSecret = true
			p, err := NewProvider(cfg, nil, nil)
			require.NoError(t, err)

			_, err = p.ResolveSessionSecret()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSecretUnavailable))
			assert.Equal(t, apperrors.KindServerMisconfigured, apperrors.KindOf(err))
			assert.Equal(t, "Server configuration error", apperrors.ToDomainError(err).Message)
		})
	}
}

func TestResolvePrivateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("missing source fails closed", func(t *testing.T) {
		p, err := NewProvider(testConfig("development"), nil, nil)
		require.NoError(t, err)

		material, err := p.ResolvePrivateKey(ctx)
		assert.Nil(t, material)
		assert.True(t, errors.Is(err, ErrKeyUnavailable))
		assert.Equal(t, "Key configuration error", apperrors.ToDomainError(err).Message)
	})

	t.Run("unparsable material fails closed", func(t *testing.T) {
		p, err := NewProvider(testConfig("development"), StaticSource{PEM: []byte("-----BEGIN NOPE-----")}, nil)
		require.NoError(t, err)

		_, err = p.ResolvePrivateKey(ctx)
		assert.True(t, errors.Is(err, ErrKeyUnavailable))
		assert.Empty(t, p.CurrentKeyID())
	})

	t.Run("file rotation is picked up after refresh", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, rsaPEM(t), 0o600))

		now := time.Unix(1_700_000_000, 0)
		p, err := NewProvider(testConfig("development"), FileSource{Path: path}, nil, WithClock(func() time.Time { return now }))
		require.NoError(t, err)

		first, err := p.ResolvePrivateKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.KeyID, p.CurrentKeyID())

		require.NoError(t, os.WriteFile(path, rsaPEM(t), 0o600))

		cached, err := p.ResolvePrivateKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.KeyID, cached.KeyID)

		now = now.Add(2 * time.Minute)
		rotated, err := p.ResolvePrivateKey(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, first.KeyID, rotated.KeyID)
	})

	t.Run("broken rotation fails closed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, rsaPEM(t), 0o600))

		now := time.Unix(1_700_000_000, 0)
		p, err := NewProvider(testConfig("development"), FileSource{Path: path}, nil, WithClock(func() time.Time { return now }))
		require.NoError(t, err)
		_, err = p.ResolvePrivateKey(ctx)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o600))
		now = now.Add(2 * time.Minute)

		_, err = p.ResolvePrivateKey(ctx)
		assert.True(t, errors.Is(err, ErrKeyUnavailable))
	})

	t.Run("redis source", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		pemBytes := rsaPEM(t)
		require.NoError(t, mr.Set("bridge:signing-key", string(pemBytes)))

		p, err := NewProvider(testConfig("development"), RedisSource{Client: rdb, Key: "bridge:signing-key"}, nil)
		require.NoError(t, err)

		material, err := p.ResolvePrivateKey(ctx)
		require.NoError(t, err)
		expected, err := ParsePrivateKeyPEM(pemBytes, "")
		require.NoError(t, err)
		assert.Equal(t, expected.KeyID, material.KeyID)
	})

	t.Run("redis source missing key", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		p, err := NewProvider(testConfig("development"), RedisSource{Client: rdb, Key: "absent"}, nil)
		require.NoError(t, err)

		_, err = p.ResolvePrivateKey(ctx)
		assert.True(t, errors.Is(err, ErrKeyUnavailable))
	})
}

func TestPublicKeySet(t *testing.T) {
	retired, err := ParsePrivateKeyPEM(rsaPEM(t), "K0")
	require.NoError(t, err)

	data, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{retired.JWK()}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "previous.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := testConfig("development")
	cfg.Auth.PreviousJWKSFile = path
	cfg.Auth.SigningKeyID = "K1"

	p, err := NewProvider(cfg, StaticSource{PEM: rsaPEM(t)}, nil)
	require.NoError(t, err)

	set, err := p.PublicKeySet(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)
	assert.Equal(t, "K1", set.Keys[0].KeyID)
	assert.Equal(t, "K0", set.Keys[1].KeyID)
	for _, key := range set.Keys {
		assert.True(t, key.IsPublic())
	}
	assert.Equal(t, "K1", p.CurrentKeyID())
}

func TestNewKeySource(t *testing.T) {
	pemLine := strings.ReplaceAll(string(rsaPEM(t)), "\n", `\n`)

	src := NewKeySource(config.AuthConfig{SigningKeyPEM: pemLine, SigningKeyFile: "/ignored"}, nil)
	require.IsType(t, StaticSource{}, src)
	_, err := ParsePrivateKeyPEM(src.(StaticSource).PEM, "")
	assert.NoError(t, err)

	assert.IsType(t, FileSource{}, NewKeySource(config.AuthConfig{SigningKeyFile: "/tmp/key.pem"}, nil))
	assert.IsType(t, RedisSource{}, NewKeySource(config.AuthConfig{SigningKeyRedisKey: "k"}, nil))
	assert.Nil(t, NewKeySource(config.AuthConfig{}, nil))
}

func TestGeneratePrivateKeyPEM(t *testing.T) {
	for _, alg := range []string{"RS256", "ES256", "es384"} {
		pemBytes, err := GeneratePrivateKeyPEM(alg, 2048)
		require.NoError(t, err, alg)

		material, err := ParsePrivateKeyPEM(pemBytes, "")
		require.NoError(t, err, alg)
		assert.Equal(t, strings.ToUpper(alg), material.Algorithm())
		assert.NotEmpty(t, material.KeyID)
	}

	_, err := GeneratePrivateKeyPEM("HS256", 0)
	assert.Error(t, err)
	_, err = GeneratePrivateKeyPEM("RS256", 1024)
	assert.Error(t, err)
}
