package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-bridge/internal/api/dto"
	"github.com/spec-kit/token-bridge/internal/auth"
	"github.com/spec-kit/token-bridge/internal/service"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

// CookieSettings controls how the session cookie is written.
type CookieSettings struct {
	Name   string
	Secure bool
}

// SessionHandler exposes password login, logout and the current session.
type SessionHandler struct {
	login  *service.LoginService
	cookie CookieSettings
}

// NewSessionHandler constructs handler.
func NewSessionHandler(login *service.LoginService, cookie CookieSettings) *SessionHandler {
	return &SessionHandler{login: login, cookie: cookie}
}

// Login handles POST /auth/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("Invalid payload", nil)
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return apperrors.NewValidationError("Invalid payload", map[string]any{"fields": err})
	}

	result, err := h.login.Login(c.UserContext(), service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Origin:   clientOrigin(c),
	})
	if err != nil {
		return err
	}

	c.Cookie(h.sessionCookie(result.Token, result.ExpiresAt))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(dto.LoginResponse{ExpiresAt: result.ExpiresAt})
}

// Logout handles POST /auth/logout by expiring the cookie.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(h.sessionCookie("", time.Unix(0, 0)))
	return c.SendStatus(fiber.StatusNoContent)
}

// Current handles GET /auth/session.
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewNotAuthenticated()
	}
	return c.JSON(dto.SessionResponse{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (h *SessionHandler) sessionCookie(value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}
