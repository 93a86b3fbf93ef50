package middleware

import (
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"contentgate/internal/logger"
)

// ErrorLocalKey holds an internal error message for the access log. It is never sent to the client.
const ErrorLocalKey = "error"

// Logger is a middleware that logs each HTTP request in JSON format to stdout.
// Fields:
// - ts (RFC3339Nano in loc, at completion)
// - request_id (taken from context locals set by RequestID middleware)
// - method
// - path (never the query string, so access tokens stay out of logs)
// - status
// - latency (in milliseconds, as float)
// - error (only when a handler stored one under ErrorLocalKey)
func Logger(loc *time.Location) fiber.Handler {
	return LoggerWithWriter(os.Stdout, loc)
}

// LoggerWithWriter is Logger with an injectable writer.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	log := logger.New(w, loc)

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		entry := logger.Fields{
			"level":      "info",
			"request_id": rid,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		}
		if subject, ok := c.Locals(SubjectLocalKey).(string); ok && subject != "" {
			entry["subject"] = subject
		}
		if msg, ok := c.Locals(ErrorLocalKey).(string); ok && msg != "" {
			entry["error"] = msg
		}
		if status >= fiber.StatusInternalServerError {
			entry["level"] = "error"
		}
		log.Log(entry)

		return err
	}
}
