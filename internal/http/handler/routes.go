package handler

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"contentgate/internal/config"
	"contentgate/internal/http/middleware"
	"contentgate/internal/service"
	"contentgate/internal/shield"
	"contentgate/internal/telemetry"
)

// Deps groups what the HTTP layer needs.
type Deps struct {
	DB          *sql.DB
	Access      service.AccessService
	Content     service.ContentService
	Sessions    ViewerSessions
	Recorder    service.UsageRecorder
	Metrics     *telemetry.Metrics
	Watermark   config.WatermarkConfig
	InternalKey string
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", Liveness())

	app.Post("/learning-units/access", RequestAccess(d.Access))
	app.Post("/learning-units/access/:grantId/progress", RecordProgress(d.Access))
	app.Get("/learning-units/access/:grantId/views", ListViews(d.Access))

	// Content bytes are never cacheable and never offered as attachments.
	app.Get("/uploads/*", shield.Protect(), ServeUpload(d.Content))

	v := NewViewerHandler(d.Content, d.Sessions, d.Recorder, d.Metrics)
	viewer := app.Group("/viewer", shield.Protect())
	viewer.Get("/overlay.svg", Overlay(d.Content, d.Watermark))
	viewer.Post("/sessions", v.Open())
	viewer.Get("/sessions/:id", v.State())
	viewer.Delete("/sessions/:id", v.Close())
	viewer.Get("/sessions/:id/frame", v.Frame())
	viewer.Get("/sessions/:id/pages/:n", v.Page())
	viewer.Post("/sessions/:id/next", v.Next())
	viewer.Post("/sessions/:id/prev", v.Prev())
	viewer.Post("/sessions/:id/zoom/in", v.ZoomIn())
	viewer.Post("/sessions/:id/zoom/out", v.ZoomOut())
	viewer.Put("/sessions/:id/zoom", v.SetZoom())
	viewer.Post("/sessions/:id/retry", v.Retry())
	viewer.Post("/sessions/:id/events", v.Events())

	internal := app.Group("/internal", middleware.InternalKey(d.InternalKey, func(c *fiber.Ctx) error {
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "internal key required")
	}))
	internal.Post("/revocations", Revoke(d.Access))
}

// HealthCheck checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable", ActionRetry)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// Liveness always answers 200.
func Liveness() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// bearerToken reads the access token from the Authorization header, falling back to the
// token query parameter used by embeddable media elements.
func bearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("token")
}
