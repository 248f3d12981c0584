// Package ratelimit implements fixed-window admission control keyed by client identity.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy caps attempts per key within a window.
type Policy struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter admits or rejects an attempt for a key. Implementations must be safe for
// concurrent use and must never admit more than Policy.Max attempts per window.
type Limiter interface {
	Admit(ctx context.Context, key string, policy Policy) (Decision, error)
}

// Key builds the composite limiter key for an endpoint and client, e.g. "login:1.2.3.4".
func Key(endpoint, client string) string {
	if client == "" {
		client = "unknown"
	}
	return endpoint + ":" + client
}

// Fallback admits through Primary and switches to Secondary when Primary errors, so an
// unreachable shared store degrades to per-process limits instead of no limits.
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
	Logger    *zap.Logger
}

func (f *Fallback) Admit(ctx context.Context, key string, policy Policy) (Decision, error) {
	decision, err := f.Primary.Admit(ctx, key, policy)
	if err == nil {
		return decision, nil
	}
	if f.Logger != nil {
		f.Logger.Warn("primary rate limiter failed; using fallback", zap.Error(err))
	}
	return f.Secondary.Admit(ctx, key, policy)
}
