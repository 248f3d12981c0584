package domain

import "time"

// UserStatus represents lifecycle states reported by the user directory.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the read-only directory record used to authenticate logins.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
