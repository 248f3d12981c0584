package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/token-bridge/internal/domain"
)

// SecurityEventRepository appends security events to the audit table.
type SecurityEventRepository interface {
	Insert(ctx context.Context, event domain.SecurityEvent) error
}

type securityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository returns a Postgres-backed implementation.
func NewSecurityEventRepository(pool *pgxpool.Pool) SecurityEventRepository {
	return &securityEventRepository{pool: pool}
}

func (r *securityEventRepository) Insert(ctx context.Context, event domain.SecurityEvent) error {
	if r.pool == nil {
		return errors.New("postgres not configured")
	}
	const query = `
        INSERT INTO security_events (id, kind, actor, method, reason, client_ip, user_agent, endpoint, occurred_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		string(event.Kind),
		event.Actor,
		event.Method,
		event.Reason,
		event.Origin.IP,
		event.Origin.UserAgent,
		event.Origin.Endpoint,
		event.Timestamp,
	)
	return err
}
