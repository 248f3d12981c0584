package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/token-bridge/internal/domain"
)

// ErrUserNotFound is returned when the directory has no matching user.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory is read-only access to the externally owned user directory.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory returns a Postgres-backed implementation.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &userDirectory{pool: pool}
}

func (r *userDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, role, password_hash, status, created_at, updated_at
        FROM users WHERE id=$1`
	return r.queryOne(ctx, query, id)
}

func (r *userDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, role, password_hash, status, created_at, updated_at
        FROM users WHERE lower(email)=$1`
	return r.queryOne(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

func (r *userDirectory) queryOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	if r.pool == nil {
		return nil, errors.New("user directory not configured")
	}

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// MemoryDirectory is an in-process directory keyed by email, for local runs and tests.
type MemoryDirectory struct {
	users map[string]*domain.User
}

// NewMemoryDirectory indexes the given users by lower-cased email.
func NewMemoryDirectory(users ...*domain.User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]*domain.User, len(users))}
	for _, u := range users {
		d.users[strings.ToLower(u.Email)] = u
	}
	return d
}

func (d *MemoryDirectory) GetByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (d *MemoryDirectory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}
