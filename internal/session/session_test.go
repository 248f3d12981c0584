package session

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/token-bridge/internal/domain"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

type staticSecret struct {
	secret []byte
	err    error
}

func (s staticSecret) ResolveSessionSecret() ([]byte, error) {
	return s.secret, s.err
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sign(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func sessionClaims(sub string, iat, exp time.Time) *Claims {
	return &Claims{
		Email: "ada@example.com",
		Name:  "Ada",
		Role:  "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func newVerifier() *Verifier {
	return NewVerifier(staticSecret{secret: []byte("s3cret")}, 0, nil, func() time.Time { return testNow })
}

func TestVerify_ValidSession(t *testing.T) {
	token := sign(t, "s3cret", sessionClaims("user-1", testNow.Add(-time.Minute), testNow.Add(time.Hour)))

	claims, err := newVerifier().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "Ada", claims.Name)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.Equal(t, testNow.Add(-time.Minute).Unix(), claims.IssuedAt.Unix())
}

func TestVerify_MissingToken(t *testing.T) {
	_, err := newVerifier().Verify("")
	assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
	assert.Equal(t, "Not authenticated", apperrors.ToDomainError(err).Message)
}

func TestVerify_ExpiredIsNeverMalformed(t *testing.T) {
	for _, age := range []time.Duration{time.Second, time.Minute, 24 * time.Hour, 400 * 24 * time.Hour} {
		token := sign(t, "s3cret", sessionClaims("user-1", testNow.Add(-age-time.Hour), testNow.Add(-age)))

		_, err := newVerifier().Verify(token)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindExpired, apperrors.KindOf(err), "age %s", age)
		assert.Equal(t, "Invalid session", apperrors.ToDomainError(err).Message)
	}
}

func TestVerify_Malformed(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, sessionClaims("user-1", testNow, testNow.Add(time.Hour)))
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret":              sign(t, "other", sessionClaims("user-1", testNow, testNow.Add(time.Hour))),
		"expired with wrong secret": sign(t, "other", sessionClaims("user-1", testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))),
		"missing subject":           sign(t, "s3cret", sessionClaims("", testNow, testNow.Add(time.Hour))),
		"missing expiry":            sign(t, "s3cret", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}),
		"alg none":                  noneToken,
		"garbage":                   "not.a.jwt",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newVerifier().Verify(token)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindMalformed, apperrors.KindOf(err))
		})
	}
}

func TestVerify_LeewayAcceptsRecentlyExpired(t *testing.T) {
	token := sign(t, "s3cret", sessionClaims("user-1", testNow.Add(-time.Hour), testNow.Add(-5*time.Second)))
	v := NewVerifier(staticSecret{secret: []byte("s3cret")}, 10*time.Second, nil, func() time.Time { return testNow })

	_, err := v.Verify(token)
	assert.NoError(t, err)
}

func TestVerify_SecretUnavailable(t *testing.T) {
	v := NewVerifier(staticSecret{err: apperrors.NewSecretMisconfigured(errors.New("none"))}, 0, nil, nil)

	_, err := v.Verify("anything")
	assert.Equal(t, apperrors.KindServerMisconfigured, apperrors.KindOf(err))
}

func TestIssuer_RoundTrip(t *testing.T) {
	secrets := staticSecret{secret: []byte("s3cret")}
	issuer := NewIssuer(secrets, 2*time.Hour, func() time.Time { return testNow })

	token, exp, err := issuer.Issue(&domain.User{ID: "user-9", Email: "grace@example.com", Name: "Grace", Role: "member"})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(2*time.Hour), exp)

	claims, err := NewVerifier(secrets, 0, nil, func() time.Time { return testNow.Add(time.Hour) }).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "member", claims.Role)

	_, err = NewVerifier(secrets, 0, nil, func() time.Time { return testNow.Add(3 * time.Hour) }).Verify(token)
	assert.Equal(t, apperrors.KindExpired, apperrors.KindOf(err))
}
