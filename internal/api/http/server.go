package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/config"
	"github.com/spec-kit/token-bridge/internal/observability"
)

// NewApp builds the fiber application with the shared error rendering and middlewares.
// Proxy headers are only honoured from cfg.TrustedProxies.
func NewApp(cfg config.AppConfig, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	clientIP, err := observability.NewClientIPResolver(cfg.ProxyHeader, cfg.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring trusted proxies", zap.Error(err))
		clientIP, _ = observability.NewClientIPResolver(cfg.ProxyHeader, nil)
	}

	app := fiber.New(fiber.Config{
		AppName:                 cfg.Name,
		ProxyHeader:             cfg.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.TrustedProxies,
		EnableIPValidation:      true,
		DisableStartupMessage:   true,
		ReadTimeout:             15 * time.Second,
		WriteTimeout:            15 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return WriteError(c, logger, metrics, err)
		},
	})
	RegisterMiddlewares(app, logger, metrics, clientIP, cfg.RequestTimeout())
	return app
}
