package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

type record struct {
	windowStart time.Time
	windowEnd   time.Time
	count       int
}

// MemoryLimiter keeps per-key windows in process memory behind a single mutex, so the
// read-check-increment of a key is one indivisible step.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter. A nil clock means time.Now.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{records: make(map[string]*record), now: now}
}

// Admit counts the attempt if the key's window still has room.
func (l *MemoryLimiter) Admit(_ context.Context, key string, policy Policy) (Decision, error) {
	if policy.Max <= 0 || policy.Window <= 0 {
		return Decision{}, errors.New("invalid rate limit policy")
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || !now.Before(rec.windowEnd) {
		rec = &record{windowStart: now, windowEnd: now.Add(policy.Window)}
		l.records[key] = rec
	}

	if rec.count >= policy.Max {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: rec.windowEnd.Sub(now),
			ResetAt:    rec.windowEnd,
		}, nil
	}

	rec.count++
	return Decision{
		Allowed:   true,
		Remaining: policy.Max - rec.count,
		ResetAt:   rec.windowEnd,
	}, nil
}

// Sweep drops windows that have elapsed and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if !now.Before(rec.windowEnd) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
