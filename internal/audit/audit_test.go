package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/token-bridge/internal/domain"
)

var origin = domain.ClientOrigin{IP: "1.2.3.4", UserAgent: "test-agent", Endpoint: "/auth/token"}

func TestRecorder_RecordsEachKind(t *testing.T) {
	sink := NewMemorySink()
	recorder := NewRecorder(nil, time.Second, sink)
	ctx := context.Background()

	recorder.RecordSuccess(ctx, "user-1", domain.MethodSessionExchange, origin)
	recorder.RecordFailure(ctx, "ada@example.com", domain.MethodPassword, domain.ReasonInvalidCredentials, origin)
	recorder.RecordRateLimited(ctx, "login:1.2.3.4", "/auth/login", origin)

	events := sink.Events()
	require.Len(t, events, 3)

	assert.Equal(t, domain.SecurityEventSuccess, events[0].Kind)
	assert.Equal(t, "user-1", events[0].Actor)
	assert.Equal(t, domain.MethodSessionExchange, events[0].Method)

	assert.Equal(t, domain.SecurityEventFailure, events[1].Kind)
	assert.Equal(t, domain.ReasonInvalidCredentials, events[1].Reason)
	assert.Equal(t, "ada@example.com", events[1].Actor)

	assert.Equal(t, domain.ReasonRateLimited, events[2].Reason)
	assert.Equal(t, "/auth/login", events[2].Origin.Endpoint)
	assert.Equal(t, "login:1.2.3.4", events[2].Actor)

	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
		assert.Equal(t, "1.2.3.4", e.Origin.IP)
	}
}

func TestRecorder_AnonymousActor(t *testing.T) {
	sink := NewMemorySink()
	NewRecorder(nil, 0, sink).RecordFailure(context.Background(), "", domain.MethodSessionExchange, domain.ReasonNotAuthenticated, origin)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "anonymous", events[0].Actor)
}

func TestRecorder_SinkFailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	healthy := NewMemorySink()
	recorder := NewRecorder(zap.New(core), time.Second,
		SinkFunc(func(context.Context, domain.SecurityEvent) error { return errors.New("db down") }),
		SinkFunc(func(context.Context, domain.SecurityEvent) error { panic("boom") }),
		healthy,
	)

	assert.NotPanics(t, func() {
		recorder.RecordSuccess(context.Background(), "user-1", domain.MethodSessionExchange, origin)
	})
	assert.Len(t, healthy.Events(), 1)
	assert.Equal(t, 1, logs.FilterMessage("security event sink failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("security event sink panicked").Len())
}

func TestRecorder_SinkTimeoutAndCancelledRequest(t *testing.T) {
	var sawDeadline bool
	recorder := NewRecorder(nil, 50*time.Millisecond, SinkFunc(func(ctx context.Context, _ domain.SecurityEvent) error {
		_, sawDeadline = ctx.Deadline()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.RecordSuccess(ctx, "user-1", domain.MethodSessionExchange, origin)

	assert.True(t, sawDeadline)
}

func TestLogSink_NeverLogsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	recorder := NewRecorder(nil, 0, NewLogSink(zap.New(core)))

	recorder.RecordFailure(context.Background(), "ada@example.com", domain.MethodPassword, domain.ReasonInvalidCredentials, origin)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "security_event", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "invalid_credentials", fields["reason"])
	for key := range fields {
		assert.False(t, strings.Contains(strings.ToLower(key), "password"))
		assert.False(t, strings.Contains(strings.ToLower(key), "token"))
	}
}

type fakeStore struct{ got []domain.SecurityEvent }

func (f *fakeStore) Insert(_ context.Context, e domain.SecurityEvent) error {
	f.got = append(f.got, e)
	return nil
}

func TestStoreSink(t *testing.T) {
	store := &fakeStore{}
	NewRecorder(nil, 0, NewStoreSink(store)).RecordRateLimited(context.Background(), "exchange:9.9.9.9", "/auth/token", origin)

	require.Len(t, store.got, 1)
	assert.Equal(t, domain.ReasonRateLimited, store.got[0].Reason)
}
