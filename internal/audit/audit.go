// Package audit records authentication outcomes to one or more sinks.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/domain"
)

// Sink persists or forwards a security event. Sinks may block on I/O.
type Sink interface {
	Write(ctx context.Context, event domain.SecurityEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event domain.SecurityEvent) error

func (f SinkFunc) Write(ctx context.Context, event domain.SecurityEvent) error {
	return f(ctx, event)
}

// Recorder fans security events out to registered sinks. Its methods never fail: a sink
// error is logged and dropped so auditing can never fail the request it describes.
type Recorder struct {
	mu      sync.RWMutex
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRecorder creates a recorder. timeout bounds each sink write; zero disables it.
func NewRecorder(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sinks:   append([]Sink{}, sinks...),
		logger:  logger.Named("audit"),
		timeout: timeout,
		now:     time.Now,
	}
}

// AddSink registers an additional sink.
func (r *Recorder) AddSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// RecordSuccess records a successful authentication.
func (r *Recorder) RecordSuccess(ctx context.Context, actor, method string, origin domain.ClientOrigin) {
	r.record(ctx, domain.SecurityEvent{
		Kind:   domain.SecurityEventSuccess,
		Actor:  actor,
		Method: method,
		Origin: origin,
	})
}

// RecordFailure records a rejected attempt. actor may be a user id, an email, or empty.
func (r *Recorder) RecordFailure(ctx context.Context, actor, method, reason string, origin domain.ClientOrigin) {
	r.record(ctx, domain.SecurityEvent{
		Kind:   domain.SecurityEventFailure,
		Actor:  actor,
		Method: method,
		Reason: reason,
		Origin: origin,
	})
}

// RecordRateLimited records an attempt rejected by admission control.
func (r *Recorder) RecordRateLimited(ctx context.Context, key, endpoint string, origin domain.ClientOrigin) {
	origin.Endpoint = endpoint
	r.record(ctx, domain.SecurityEvent{
		Kind:   domain.SecurityEventFailure,
		Actor:  key,
		Reason: domain.ReasonRateLimited,
		Origin: origin,
	})
}

func (r *Recorder) record(ctx context.Context, event domain.SecurityEvent) {
	event.ID = uuid.NewString()
	event.Timestamp = r.now().UTC()
	if event.Actor == "" {
		event.Actor = "anonymous"
	}

	r.mu.RLock()
	sinks := append([]Sink{}, r.sinks...)
	r.mu.RUnlock()

	for _, sink := range sinks {
		r.write(ctx, sink, event)
	}
}

func (r *Recorder) write(ctx context.Context, sink Sink, event domain.SecurityEvent) {
	// The request may already be cancelled; the audit trail must still be written.
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("security event sink panicked",
				zap.String("event_id", event.ID),
				zap.String("panic", fmt.Sprint(rec)))
		}
	}()

	if err := sink.Write(ctx, event); err != nil {
		r.logger.Error("security event sink failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}
