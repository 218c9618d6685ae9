package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Logger logs slow or failed requests; fast successful ones stay quiet so
// the proxy event stream does not flood the log.
func Logger() fiber.Handler {
	const slowThreshold = 500 * time.Millisecond

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		status := c.Response().StatusCode()
		if err == nil && status < 400 && latency < slowThreshold {
			return nil
		}

		ev := log.Info()
		if err != nil || status >= 500 {
			ev = log.Error().Err(err)
		} else if status >= 400 {
			ev = log.Warn()
		}
		ev.Int("status", status).
			Dur("latency", latency).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request")

		return err
	}
}
