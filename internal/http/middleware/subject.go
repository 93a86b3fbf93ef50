package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// SubjectHeader carries the authenticated user id set by the upstream gateway.
	SubjectHeader = "X-User-ID"
	// SubjectLocalKey is the key used to store the subject in Fiber's context locals.
	SubjectLocalKey = "subject"
	// InternalKeyHeader authenticates service-to-service calls.
	InternalKeyHeader = "X-Internal-Key"
)

// Subject copies the gateway-authenticated user id into locals. Requests without one are
// passed through; handlers that need a subject reject them.
func Subject() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s := strings.TrimSpace(c.Get(SubjectHeader)); s != "" {
			c.Locals(SubjectLocalKey, s)
		}
		return c.Next()
	}
}

// SubjectFromCtx returns the subject stored by Subject, or "".
func SubjectFromCtx(c *fiber.Ctx) string {
	s, _ := c.Locals(SubjectLocalKey).(string)
	return s
}

// InternalKey guards internal endpoints with a shared key. An empty key disables the routes.
func InternalKey(key string, onDenied fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(InternalKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return onDenied(c)
		}
		return c.Next()
	}
}
