package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/observability"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
// The client address is resolved first; the request logger wraps the error middleware so it
// observes the rendered status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, clientIP *observability.ClientIPResolver, timeout time.Duration) {
	app.Use(clientIP.Handler())
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				err = WriteError(c, logger, metrics, err)
			}
		}()
		return c.Next()
	}
}

// WriteError renders err as {"error": message}. It is also installed as the fiber ErrorHandler
// so errors raised outside the middleware chain share the same shape.
func WriteError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, err error) error {
	domainErr := toDomainError(err)
	metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)

	response := fiber.Map{"error": domainErr.Message}
	if len(domainErr.Details) > 0 {
		response["details"] = domainErr.Details
	}
	if secs := domainErr.RetryAfterSeconds(); domainErr.HTTPStatus == fiber.StatusTooManyRequests && secs > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		response["retryAfter"] = secs
	}
	if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("kind", string(domainErr.Kind)),
			zap.Error(domainErr))
	}
	return c.Status(domainErr.HTTPStatus).JSON(response)
}

func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		kind := apperrors.KindInternal
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			kind = apperrors.KindNotFound
		case fiberErr.Code < fiber.StatusInternalServerError:
			kind = apperrors.KindValidation
		}
		return apperrors.NewDomainError(kind, "HTTP_"+strconv.Itoa(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}
	return apperrors.ToDomainError(err)
}
