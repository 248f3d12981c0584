package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-bridge/internal/api/http/handlers"
	"github.com/spec-kit/token-bridge/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Token   *handlers.TokenHandler
	Session *handlers.SessionHandler
	JWKS    *handlers.JWKSHandler
	Metrics fiber.Handler
	Auth    *auth.SessionMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}
	app.Get("/.well-known/jwks.json", cfg.JWKS.KeySet)

	authGroup := app.Group("/auth")
	authGroup.Get("/token", cfg.Token.Exchange)
	authGroup.Post("/token", cfg.Token.Exchange)
	authGroup.Post("/login", cfg.Session.Login)
	authGroup.Post("/logout", cfg.Session.Logout)
	authGroup.Get("/session", cfg.Auth.Handle, cfg.Session.Current)
}
