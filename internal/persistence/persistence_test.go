package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/config"
)

func TestRedisPing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	defer rdb.Close()

	assert.NoError(t, rdb.Ping(context.Background()))

	unreachable := NewRedis(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	defer unreachable.Close()
	assert.Error(t, unreachable.Ping(context.Background()))
}

func TestNilHandles(t *testing.T) {
	var pg *Postgres
	assert.False(t, pg.Enabled())
	assert.Nil(t, pg.PoolHandle())
	assert.Error(t, pg.Ping(context.Background()))

	var rdb *Redis
	assert.Error(t, rdb.Ping(context.Background()))
}

func TestNewPostgres_WithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.NoError(t, err)
	assert.False(t, pg.Enabled())
	assert.NoError(t, RunMigrations(context.Background(), pg.PoolHandle(), nil, zap.NewNop()))
}
