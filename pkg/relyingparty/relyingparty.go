// Package relyingparty verifies service tokens the way a backend platform does: against the
// published JWKS, pinned to the expected issuer and audience.
package relyingparty

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/token-bridge/internal/servicetoken"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid service token")

// Identity is the caller a verified service token speaks for.
type Identity struct {
	BaseURL   string
	Namespace string
	UserID    string
	Email     string
	Name      string
	Role      string
	KeyID     string
	ExpiresAt time.Time
}

// Config pins what a token must carry to be accepted.
type Config struct {
	Issuer    string
	Audience  string
	Namespace string
	Leeway    time.Duration
}

type claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks service tokens.
type Verifier struct {
	cfg  Config
	jwks *keyfunc.JWKS
	now  func() time.Time
}

// NewFromJSON builds a verifier from a static JWKS document.
func NewFromJSON(cfg Config, jwksJSON []byte) (*Verifier, error) {
	jwks, err := keyfunc.NewJSON(json.RawMessage(jwksJSON))
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	return &Verifier{cfg: cfg, jwks: jwks, now: time.Now}, nil
}

// NewFromURL builds a verifier that fetches the JWKS and refreshes it in the background,
// including on unknown kids so rotations are picked up. Call Close to stop refreshing.
func NewFromURL(cfg Config, url string, refresh time.Duration) (*Verifier, error) {
	if refresh <= 0 {
		refresh = time.Hour
	}
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return &Verifier{cfg: cfg, jwks: jwks, now: time.Now}, nil
}

// Close stops background refreshing.
func (v *Verifier) Close() {
	v.jwks.EndBackground()
}

// Verify validates the token and decomposes its subject.
func (v *Verifier) Verify(token string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256", "ES384"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	c := &claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, c, v.jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	baseURL, namespace, userID, err := servicetoken.ParseSubject(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.cfg.Issuer != "" && baseURL != v.cfg.Issuer {
		return nil, fmt.Errorf("%w: subject base url does not match issuer", ErrInvalidToken)
	}
	if v.cfg.Namespace != "" && namespace != v.cfg.Namespace {
		return nil, fmt.Errorf("%w: unexpected namespace %q", ErrInvalidToken, namespace)
	}

	kid, _ := parsed.Header["kid"].(string)
	return &Identity{
		BaseURL:   baseURL,
		Namespace: namespace,
		UserID:    userID,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		KeyID:     kid,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
