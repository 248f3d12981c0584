package keys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/token-bridge/internal/config"
)

// KeySource fetches PEM-encoded private key material. Implementations may block on I/O.
type KeySource interface {
	Load(ctx context.Context) ([]byte, error)
	Name() string
}

// StaticSource serves key material supplied inline, typically from an environment variable.
type StaticSource struct {
	PEM []byte
}

func (s StaticSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, len(s.PEM))
	copy(out, s.PEM)
	return out, nil
}

func (s StaticSource) Name() string { return "env" }

// FileSource reads key material from disk on every load so external rotation is picked up.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return data, nil
}

func (s FileSource) Name() string { return "file" }

// RedisSource reads key material stored under a Redis key by an external rotation job.
type RedisSource struct {
	Client *redis.Client
	Key    string
}

func (s RedisSource) Load(ctx context.Context) ([]byte, error) {
	if s.Client == nil {
		return nil, errors.New("redis client not configured")
	}
	data, err := s.Client.Get(ctx, s.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("key %q not found in redis", s.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (s RedisSource) Name() string { return "redis" }

// NewKeySource picks the configured source: inline PEM, then file, then Redis.
// It returns nil when no signing key is configured at all.
func NewKeySource(cfg config.AuthConfig, rdb *redis.Client) KeySource {
	switch {
	case strings.TrimSpace(cfg.SigningKeyPEM) != "":
		return StaticSource{PEM: []byte(unescapeNewlines(cfg.SigningKeyPEM))}
	case cfg.SigningKeyFile != "":
		return FileSource{Path: cfg.SigningKeyFile}
	case cfg.SigningKeyRedisKey != "":
		return RedisSource{Client: rdb, Key: cfg.SigningKeyRedisKey}
	default:
		return nil
	}
}

// unescapeNewlines accepts PEM blocks flattened into a single env line with literal \n.
func unescapeNewlines(s string) string {
	if strings.Contains(s, "\n") {
		return s
	}
	return strings.ReplaceAll(s, `\n`, "\n")
}
