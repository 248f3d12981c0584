// Package session verifies and issues the first-party HS256 session credential.
package session

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/domain"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

// SecretResolver supplies the symmetric session secret.
type SecretResolver interface {
	ResolveSessionSecret() ([]byte, error)
}

// Claims describes the session credential payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates session credentials.
type Verifier struct {
	secrets SecretResolver
	leeway  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewVerifier constructs a verifier. A nil clock means time.Now.
func NewVerifier(secrets SecretResolver, leeway time.Duration, logger *zap.Logger, now func() time.Time) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{secrets: secrets, leeway: leeway, logger: logger.Named("session"), now: now}
}

// Verify checks signature and expiry and returns the identity claims.
// A missing token is Unauthenticated, a correctly signed but expired token is Expired, and
// everything else is Malformed.
func (v *Verifier) Verify(token string) (*domain.SessionClaims, error) {
	if token == "" {
		return nil, apperrors.NewNotAuthenticated()
	}

	secret, err := v.secrets.ResolveSessionSecret()
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			v.logger.Debug("session rejected", zap.String("kind", string(apperrors.KindExpired)))
			return nil, apperrors.NewExpiredSession(jwt.ErrTokenExpired)
		}
		v.logger.Debug("session rejected", zap.String("kind", string(apperrors.KindMalformed)), zap.Error(err))
		return nil, apperrors.NewMalformedSession(err)
	}
	if claims.Subject == "" {
		v.logger.Debug("session rejected", zap.String("kind", string(apperrors.KindMalformed)), zap.String("cause", "missing subject"))
		return nil, apperrors.NewMalformedSession(errors.New("missing subject"))
	}

	out := &domain.SessionClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Role:    claims.Role,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	out.ExpiresAt = claims.ExpiresAt.Time
	return out, nil
}

// Issuer mints session credentials after a successful login.
type Issuer struct {
	secrets SecretResolver
	ttl     time.Duration
	now     func() time.Time
}

// NewIssuer builds an issuer; ttl defaults to one hour when unset.
func NewIssuer(secrets SecretResolver, ttl time.Duration, now func() time.Time) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secrets: secrets, ttl: ttl, now: now}
}

// Issue signs a session credential for the user.
func (i *Issuer) Issue(user *domain.User) (string, time.Time, error) {
	secret, err := i.secrets.ResolveSessionSecret()
	if err != nil {
		return "", time.Time{}, err
	}

	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)
	claims := &Claims{
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, apperrors.NewSigningFailed(err)
	}
	return tokenString, expiresAt, nil
}
