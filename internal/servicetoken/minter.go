// Package servicetoken mints the asymmetrically signed tokens consumed by the backend platform.
package servicetoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/token-bridge/internal/domain"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

// Lifetime is the fixed validity window of every service token.
const Lifetime = 30 * 24 * time.Hour

// SubjectSeparator joins base URL, namespace and user id in the token subject.
// Changing it invalidates the identity binding of every token already issued.
const SubjectSeparator = "|"

// Signer signs a prepared token. keys.Material implements it.
type Signer interface {
	SigningMethod() jwt.SigningMethod
	Sign(token *jwt.Token) (string, error)
}

// Claims is the service token payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Token is a minted service token plus the metadata callers log or return.
type Token struct {
	Value     string
	KeyID     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Minter builds and signs service tokens.
type Minter struct {
	namespace string
	audience  string
	timeout   time.Duration
	now       func() time.Time
}

// NewMinter constructs a minter. timeout bounds the signing step; zero disables it.
func NewMinter(namespace, audience string, timeout time.Duration, now func() time.Time) *Minter {
	if now == nil {
		now = time.Now
	}
	return &Minter{namespace: namespace, audience: audience, timeout: timeout, now: now}
}

// Mint signs a service token for verified session claims. Expiry is always issuedAt + Lifetime.
func (m *Minter) Mint(ctx context.Context, signer Signer, claims *domain.SessionClaims, baseURL string) (*Token, error) {
	if signer == nil {
		return nil, apperrors.NewSigningFailed(errors.New("no signer"))
	}
	if claims == nil || claims.Subject == "" {
		return nil, apperrors.NewSigningFailed(errors.New("missing session subject"))
	}
	if baseURL == "" || strings.Contains(baseURL, SubjectSeparator) {
		return nil, apperrors.NewSigningFailed(fmt.Errorf("invalid base url %q", baseURL))
	}

	issuedAt := m.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(Lifetime)
	subject := BuildSubject(baseURL, m.namespace, claims.Subject)

	payload := &Claims{
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    baseURL,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(signer.SigningMethod(), payload)
	token.Header["typ"] = "JWT"

	signed, err := m.sign(ctx, signer, token)
	if err != nil {
		return nil, apperrors.NewSigningFailed(err)
	}

	kid, _ := token.Header["kid"].(string)
	return &Token{
		Value:     signed,
		KeyID:     kid,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (m *Minter) sign(ctx context.Context, signer Signer, token *jwt.Token) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := signer.Sign(token)
		done <- result{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("signing aborted: %w", ctx.Err())
	}
}

// BuildSubject joins the three identity parts with SubjectSeparator.
func BuildSubject(baseURL, namespace, userID string) string {
	return baseURL + SubjectSeparator + namespace + SubjectSeparator + userID
}

// ParseSubject splits a subject produced by BuildSubject. The user id may itself contain the
// separator; base URL and namespace may not.
func ParseSubject(subject string) (baseURL, namespace, userID string, err error) {
	parts := strings.SplitN(subject, SubjectSeparator, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("subject %q is not in base|namespace|user form", subject)
	}
	return parts[0], parts[1], parts[2], nil
}
