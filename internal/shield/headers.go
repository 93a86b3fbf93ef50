package shield

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Protect sets the response headers every protected byte stream and frame carries:
// nothing is cached past the token lifetime, nothing is offered as a download, and the
// document cannot be framed by another origin. Mount it on protected route groups only.
func Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		h := &c.Response().Header
		h.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, private, max-age=0")
		h.Set(fiber.HeaderPragma, "no-cache")
		h.Set(fiber.HeaderExpires, "0")
		h.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		h.Set(fiber.HeaderReferrerPolicy, "no-referrer")
		h.Set(fiber.HeaderContentSecurityPolicy, "default-src 'none'; img-src 'self' data:; media-src 'self'; style-src 'unsafe-inline'; frame-ancestors 'self'")
		h.Set("Permissions-Policy", "picture-in-picture=(), display-capture=(), clipboard-write=()")

		// Inline only. An attachment disposition would surface a Save As prompt.
		if cd := string(h.Peek(fiber.HeaderContentDisposition)); cd != "" && !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cd)), "inline") {
			h.Set(fiber.HeaderContentDisposition, "inline")
		}
		return err
	}
}
