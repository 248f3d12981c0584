package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loginPolicy = Policy{Max: 5, Window: 60 * time.Second}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(clk.Now)
	ctx := context.Background()
	key := Key("login", "1.2.3.4")

	for i := 0; i < 5; i++ {
		d, err := limiter.Admit(ctx, key, loginPolicy)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
		clk.Advance(2 * time.Second)
	}

	d, err := limiter.Admit(ctx, key, loginPolicy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 60*time.Second)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	other, err := limiter.Admit(ctx, Key("login", "5.6.7.8"), loginPolicy)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clk.Advance(50 * time.Second)
	d, err = limiter.Admit(ctx, key, loginPolicy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestMemoryLimiter_RejectionsDoNotExtendWindow(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(clk.Now)
	ctx := context.Background()
	policy := Policy{Max: 1, Window: 10 * time.Second}

	d, _ := limiter.Admit(ctx, "k", policy)
	require.True(t, d.Allowed)

	for i := 0; i < 9; i++ {
		clk.Advance(time.Second)
		d, _ = limiter.Admit(ctx, "k", policy)
		require.False(t, d.Allowed)
	}

	clk.Advance(time.Second)
	d, _ = limiter.Admit(ctx, "k", policy)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_NoDoubleAdmitAtLastSlot(t *testing.T) {
	for round := 0; round < 50; round++ {
		limiter := NewMemoryLimiter(nil)
		ctx := context.Background()
		for i := 0; i < loginPolicy.Max-1; i++ {
			d, err := limiter.Admit(ctx, "k", loginPolicy)
			require.NoError(t, err)
			require.True(t, d.Allowed)
		}

		var admitted, rejected int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				d, err := limiter.Admit(ctx, "k", loginPolicy)
				if err != nil {
					return
				}
				if d.Allowed {
					atomic.AddInt32(&admitted, 1)
				} else {
					atomic.AddInt32(&rejected, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), admitted)
		assert.Equal(t, int32(1), rejected)
	}
}

func TestMemoryLimiter_ConcurrentBurst(t *testing.T) {
	limiter := NewMemoryLimiter(nil)
	policy := Policy{Max: 10, Window: time.Minute}

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, err := limiter.Admit(context.Background(), "burst", policy); err == nil && d.Allowed {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), admitted)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(clk.Now)
	ctx := context.Background()

	_, _ = limiter.Admit(ctx, "a", Policy{Max: 1, Window: 10 * time.Second})
	_, _ = limiter.Admit(ctx, "b", Policy{Max: 1, Window: time.Minute})
	require.Equal(t, 2, limiter.Len())

	clk.Advance(11 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())
}

func TestMemoryLimiter_InvalidPolicy(t *testing.T) {
	_, err := NewMemoryLimiter(nil).Admit(context.Background(), "k", Policy{})
	assert.Error(t, err)
}

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, nil), mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	ctx := context.Background()
	key := Key("login", "1.2.3.4")

	for i := 0; i < 5; i++ {
		d, err := limiter.Admit(ctx, key, loginPolicy)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d, err := limiter.Admit(ctx, key, loginPolicy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 60*time.Second)

	mr.FastForward(61 * time.Second)

	d, err = limiter.Admit(ctx, key, loginPolicy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_NoDoubleAdmitAtLastSlot(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()
	for i := 0; i < loginPolicy.Max-1; i++ {
		_, err := limiter.Admit(ctx, "k", loginPolicy)
		require.NoError(t, err)
	}

	var admitted, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Admit(ctx, "k", loginPolicy)
			if err != nil {
				return
			}
			if d.Allowed {
				atomic.AddInt32(&admitted, 1)
			} else {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
	assert.Equal(t, int32(1), rejected)
}

type failingLimiter struct{}

func (failingLimiter) Admit(context.Context, string, Policy) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestFallback(t *testing.T) {
	limiter := &Fallback{Primary: failingLimiter{}, Secondary: NewMemoryLimiter(nil)}
	policy := Policy{Max: 1, Window: time.Minute}

	d, err := limiter.Admit(context.Background(), "k", policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Admit(context.Background(), "k", policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "login:1.2.3.4", Key("login", "1.2.3.4"))
	assert.Equal(t, "exchange:unknown", Key("exchange", ""))
}
