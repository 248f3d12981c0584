package domain

import "time"

// SecurityEventKind distinguishes successful from failed authentication attempts.
type SecurityEventKind string

const (
	SecurityEventSuccess SecurityEventKind = "success"
	SecurityEventFailure SecurityEventKind = "failure"
)

// Failure reasons recorded on security events.
const (
	ReasonRateLimited        = "rate_limited"
	ReasonNotAuthenticated   = "not_authenticated"
	ReasonMalformed          = "malformed_session"
	ReasonExpired            = "expired_session"
	ReasonSecretUnavailable  = "secret_unavailable"
	ReasonKeyUnavailable     = "key_unavailable"
	ReasonSigningFailed      = "signing_failed"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountDisabled    = "account_disabled"
	ReasonDirectoryError     = "directory_error"
)

// Authentication methods recorded on security events.
const (
	MethodSessionExchange = "session_exchange"
	MethodPassword        = "password"
)

// ClientOrigin describes where an attempt came from.
type ClientOrigin struct {
	IP        string
	UserAgent string
	Endpoint  string
}

// SecurityEvent is one append-only audit record. It must never carry secrets or raw tokens.
type SecurityEvent struct {
	ID        string
	Kind      SecurityEventKind
	Actor     string
	Method    string
	Reason    string
	Origin    ClientOrigin
	Timestamp time.Time
}
