package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/token-bridge/internal/domain"
	"github.com/spec-kit/token-bridge/internal/observability"
)

// clientOrigin describes the caller. Values are copied out of the request buffer because
// fiber reuses it once the handler returns.
func clientOrigin(c *fiber.Ctx) domain.ClientOrigin {
	return domain.ClientOrigin{
		IP:        observability.ClientIP(c),
		UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		Endpoint:  utils.CopyString(c.Path()),
	}
}
