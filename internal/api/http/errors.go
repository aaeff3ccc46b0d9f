package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-favorites/internal/favorites"
	"github.com/i474232898/weather-favorites/internal/forecast"
	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/weather/providers"
)

// statusFor maps an error to its HTTP status and whether the client may
// retry the same request later.
func statusFor(err error) (int, bool) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, false
	case errors.Is(err, forecast.ErrInvalidRequest), errors.Is(err, favorites.ErrInvalidLocation):
		return fiber.StatusBadRequest, false
	case errors.Is(err, forecast.ErrNoData):
		return fiber.StatusNotFound, false
	case errors.Is(err, providers.ErrTransient), errors.Is(err, providers.ErrCircuitOpen):
		return fiber.StatusServiceUnavailable, true
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, true
	case errors.Is(err, providers.ErrInvalidResponse), errors.Is(err, providers.ErrClient):
		return fiber.StatusBadGateway, false
	case errors.Is(err, forecast.ErrNoProviders):
		return fiber.StatusServiceUnavailable, false
	default:
		return fiber.StatusInternalServerError, false
	}
}

// ErrorHandler renders every error as {"error": true, "message": ..., "retry": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, retry := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		logger.Get("http").Warnf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
		"retry":   retry,
	})
}
