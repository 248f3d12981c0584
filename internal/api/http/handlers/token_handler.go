package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-bridge/internal/api/dto"
	"github.com/spec-kit/token-bridge/internal/service"
)

// TokenHandler exchanges the session cookie for a service token.
type TokenHandler struct {
	exchange   *service.ExchangeService
	cookieName string
}

// NewTokenHandler constructs handler.
func NewTokenHandler(exchange *service.ExchangeService, cookieName string) *TokenHandler {
	return &TokenHandler{exchange: exchange, cookieName: cookieName}
}

// Exchange handles GET and POST /auth/token.
func (h *TokenHandler) Exchange(c *fiber.Ctx) error {
	token, err := h.exchange.Exchange(c.UserContext(), service.ExchangeRequest{
		SessionToken: c.Cookies(h.cookieName),
		Origin:       clientOrigin(c),
	})
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(dto.TokenResponse{Token: token.Value})
}
