package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/domain"
)

// LogSink writes events as structured log entries for the observability pipeline.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("security")}
}

func (s *LogSink) Write(_ context.Context, event domain.SecurityEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("actor", event.Actor),
		zap.String("client_ip", event.Origin.IP),
		zap.String("endpoint", event.Origin.Endpoint),
		zap.Time("occurred_at", event.Timestamp),
	}
	if event.Method != "" {
		fields = append(fields, zap.String("method", event.Method))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if event.Origin.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.Origin.UserAgent))
	}

	if event.Kind == domain.SecurityEventSuccess {
		s.logger.Info("security_event", fields...)
	} else {
		s.logger.Warn("security_event", fields...)
	}
	return nil
}

// EventStore persists events; repository.SecurityEventRepository implements it.
type EventStore interface {
	Insert(ctx context.Context, event domain.SecurityEvent) error
}

// StoreSink writes events to a persistent store.
type StoreSink struct {
	store EventStore
}

func NewStoreSink(store EventStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Write(ctx context.Context, event domain.SecurityEvent) error {
	return s.store.Insert(ctx, event)
}

// MemorySink keeps events in memory; used by tests and local tooling.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, event domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SecurityEvent{}, s.events...)
}
