package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-bridge/internal/domain"
)

const claimsKey = "session_claims"

// SessionVerifier validates a session credential.
type SessionVerifier interface {
	Verify(token string) (*domain.SessionClaims, error)
}

// SessionMiddleware authenticates requests from the session cookie.
type SessionMiddleware struct {
	verifier   SessionVerifier
	cookieName string
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(verifier SessionVerifier, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{verifier: verifier, cookieName: cookieName}
}

// Handle enforces a valid session for protected routes. Verification errors are returned
// unchanged so the error middleware renders them.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	claims, err := m.verifier.Verify(c.Cookies(m.cookieName))
	if err != nil {
		return err
	}
	c.Locals(claimsKey, claims)
	return c.Next()
}

// ClaimsFromContext retrieves the verified session claims.
func ClaimsFromContext(c *fiber.Ctx) (*domain.SessionClaims, bool) {
	claims, ok := c.Locals(claimsKey).(*domain.SessionClaims)
	return claims, ok && claims != nil
}
