package dto

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// LoginRequest payload for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload shape before any credential work happens.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 1024)),
	)
}

// Normalize trims the email so lookups are stable.
func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

// LoginResponse is returned once the session cookie is set.
type LoginResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenResponse carries a freshly minted service token.
type TokenResponse struct {
	Token string `json:"token"`
}

// SessionResponse describes the caller's verified session.
type SessionResponse struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}
