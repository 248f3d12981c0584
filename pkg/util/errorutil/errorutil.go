package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure so callers can switch on it instead of inspecting messages.
type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindExpired             Kind = "expired"
	KindMalformed           Kind = "malformed"
	KindRateLimited         Kind = "rate_limited"
	KindServerMisconfigured Kind = "server_misconfigured"
	KindSigningFailed       Kind = "signing_failed"
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
)

// Codes that distinguish the two server misconfiguration cases.
const (
	CodeSecretConfiguration = "SECRET_CONFIGURATION"
	CodeKeyConfiguration    = "KEY_CONFIGURATION"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	RetryAfter time.Duration
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, never below one.
func (e *DomainError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind Kind, code, message string, status int, err error) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Err: err}
}

// NewNotAuthenticated reports a missing session credential.
func NewNotAuthenticated() error {
	return NewDomainError(KindUnauthenticated, "NOT_AUTHENTICATED", "Not authenticated", http.StatusUnauthorized, nil)
}

// NewUnauthorized reports rejected credentials with a caller-facing message.
func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthenticated, "UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

// NewMalformedSession reports a credential whose signature or format is invalid.
func NewMalformedSession(err error) error {
	return NewDomainError(KindMalformed, "INVALID_SESSION", "Invalid session", http.StatusUnauthorized, err)
}

// NewExpiredSession reports a correctly signed credential past its expiry.
func NewExpiredSession(err error) error {
	return NewDomainError(KindExpired, "SESSION_EXPIRED", "Invalid session", http.StatusUnauthorized, err)
}

func NewRateLimited(retryAfter time.Duration) error {
	return &DomainError{
		Kind:       KindRateLimited,
		Code:       "RATE_LIMITED",
		Message:    "Too many requests",
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// NewSecretMisconfigured reports that no usable session secret is configured.
func NewSecretMisconfigured(err error) error {
	return NewDomainError(KindServerMisconfigured, CodeSecretConfiguration, "Server configuration error", http.StatusInternalServerError, err)
}

// NewKeyMisconfigured reports that signing key material could not be loaded.
func NewKeyMisconfigured(err error) error {
	return NewDomainError(KindServerMisconfigured, CodeKeyConfiguration, "Key configuration error", http.StatusInternalServerError, err)
}

func NewSigningFailed(err error) error {
	return NewDomainError(KindSigningFailed, "SIGNING_FAILED", "Token signing failed", http.StatusInternalServerError, err)
}

func NewValidationError(message string, details map[string]any) error {
	de := NewDomainError(KindValidation, "VALIDATION_FAILED", message, http.StatusBadRequest, nil)
	de.Details = details
	return de
}

func NewInternalError(err error) error {
	return NewDomainError(KindInternal, "INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError, err)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// KindOf returns the error kind, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Kind
}
