package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dispatch-sh/dispatcher/internal/logger"
)

// RequestLogger emits one structured line per HTTP request. WebSocket
// upgrades log once at upgrade time, not per frame.
func RequestLogger() fiber.Handler {
	log := logger.Component("http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		event := log.Info()
		if err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			event = log.Error().Err(err)
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request")
		return err
	}
}
