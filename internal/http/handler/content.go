package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"contentgate/internal/config"
	"contentgate/internal/service"
	"contentgate/internal/shield"
)

// ServeUpload godoc
// @Summary      Stream a protected asset
// @Description  Accepts the token as a Bearer header or the token query parameter. Honors a single byte range.
// @Tags         content
// @Produce      octet-stream
// @Param        token  query  string  false  "Access token"
// @Success      200
// @Success      206
// @Failure      401  {object}  errorPayload
// @Failure      403  {object}  errorPayload
// @Failure      416  {object}  errorPayload
// @Router       /uploads/{locator} [get]
func ServeUpload(svc service.ContentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.Serve(c.UserContext(), bearerToken(c), c.Params("*"), c.Get(fiber.HeaderRange))
		if err != nil {
			if errors.Is(err, service.ErrRangeNotSatisfiable) && d != nil {
				c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes */%d", d.Total))
			}
			return writeDomainError(c, err)
		}

		c.Set(fiber.HeaderContentType, d.ContentType)
		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Set(fiber.HeaderContentDisposition, "inline")
		if d.ETag != "" {
			c.Set(fiber.HeaderETag, `"`+d.ETag+`"`)
		}
		if !d.LastModified.IsZero() {
			c.Set(fiber.HeaderLastModified, d.LastModified.UTC().Format(http.TimeFormat))
		}
		if d.Partial {
			c.Status(fiber.StatusPartialContent)
			c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", d.Start, d.End, d.Total))
		}
		// fasthttp closes the body stream once it has been written.
		return c.SendStream(d.Body, int(d.Length))
	}
}

// Overlay godoc
// @Summary  Tiled identity watermark for media surfaces
// @Tags     viewer
// @Produce  image/svg+xml
// @Param    token  query  string  true  "Access token"
// @Success  200
// @Router   /viewer/overlay.svg [get]
func Overlay(svc service.ContentService, wm config.WatermarkConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := svc.Validate(c.UserContext(), bearerToken(c))
		if err != nil {
			return writeDomainError(c, err)
		}
		c.Set(fiber.HeaderContentType, "image/svg+xml")
		return c.Send(shield.OverlaySVG(shield.WatermarkText(claims.Subject, claims.GrantID()), wm))
	}
}
