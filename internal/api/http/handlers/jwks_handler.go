package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	jose "gopkg.in/square/go-jose.v2"
)

// KeySetSource publishes verification keys.
type KeySetSource interface {
	PublicKeySet(ctx context.Context) (jose.JSONWebKeySet, error)
}

// JWKSHandler serves the public key set relying parties verify service tokens with.
type JWKSHandler struct {
	keys KeySetSource
}

// NewJWKSHandler constructs handler.
func NewJWKSHandler(keys KeySetSource) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// KeySet handles GET /.well-known/jwks.json.
func (h *JWKSHandler) KeySet(c *fiber.Ctx) error {
	set, err := h.keys.PublicKeySet(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(set)
}
