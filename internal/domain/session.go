package domain

import "time"

// SessionClaims is the identity carried by a verified session credential.
// It only exists for the duration of a single request.
type SessionClaims struct {
	Subject   string
	Email     string
	Name      string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
