package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drops expired state and reports how many entries it removed.
type Sweeper interface {
	Sweep() int
}

// StartLimiterSweeper periodically evicts elapsed rate limit windows until ctx is cancelled.
// The returned channel closes once the loop has exited.
func StartLimiterSweeper(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if sweeper == nil || interval <= 0 {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := sweeper.Sweep(); removed > 0 {
					logger.Debug("rate limit windows swept", zap.Int("removed", removed))
				}
			}
		}
	}()
	return done
}
