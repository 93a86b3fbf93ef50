package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"contentgate/internal/events"
	"contentgate/internal/http/middleware"
	"contentgate/internal/render"
	"contentgate/internal/service"
	"contentgate/internal/shield"
	"contentgate/internal/telemetry"
	"contentgate/internal/token"
)

// ViewerSessions is the server-side document viewer. *render.Manager implements it.
type ViewerSessions interface {
	Open(ctx context.Context, req render.OpenRequest) (*render.Session, error)
	Get(id, grantID string) (*render.Session, error)
	Close(id, grantID string) (*render.Session, error)
}

// ViewerHandler serves the /viewer/sessions endpoints. Every call carries the access token;
// a session is only reachable with the grant that opened it.
type ViewerHandler struct {
	content  service.ContentService
	sessions ViewerSessions
	recorder service.UsageRecorder
	metrics  *telemetry.Metrics

	// NowFunc is replaceable in tests.
	NowFunc func() time.Time
}

// NewViewerHandler wires the viewer endpoints.
func NewViewerHandler(content service.ContentService, sessions ViewerSessions, recorder service.UsageRecorder, metrics *telemetry.Metrics) *ViewerHandler {
	return &ViewerHandler{
		content:  content,
		sessions: sessions,
		recorder: recorder,
		metrics:  metrics,
		NowFunc:  time.Now,
	}
}

func (h *ViewerHandler) claims(c *fiber.Ctx) (*token.Claims, error) {
	claims, err := h.content.Validate(c.UserContext(), bearerToken(c))
	if err != nil {
		return nil, err
	}
	return claims, checkSubject(c, claims)
}

// closingClaims accepts a token that has expired or been revoked since the session opened,
// so the grant can still end its own session and have the view recorded.
func (h *ViewerHandler) closingClaims(c *fiber.Ctx) (*token.Claims, error) {
	claims, err := h.content.Identify(c.UserContext(), bearerToken(c))
	if err != nil {
		return nil, err
	}
	return claims, checkSubject(c, claims)
}

func checkSubject(c *fiber.Ctx, claims *token.Claims) error {
	if sub := middleware.SubjectFromCtx(c); sub != "" && sub != claims.Subject {
		return service.ErrGrantNotOwned
	}
	return nil
}

func (h *ViewerHandler) lookup(c *fiber.Ctx) (*render.Session, *token.Claims, error) {
	claims, err := h.claims(c)
	if err != nil {
		return nil, nil, err
	}
	s, err := h.sessions.Get(c.Params("id"), claims.GrantID())
	if err != nil {
		return nil, nil, err
	}
	return s, claims, nil
}

// SessionFinalizer is the render.Options.OnClose hook for sessions the client never closed:
// it records the view with the time the session was open and no completion figure.
func SessionFinalizer(recorder service.UsageRecorder, now func() time.Time) func(*render.Session) {
	return func(s *render.Session) {
		recorder.RecordProgress(s.Grant().ID, now().Sub(s.OpenedAt()), 0)
	}
}

type openSessionRequest struct {
	MountID string `json:"mountId"`
}

// Open godoc
// @Summary      Open a viewer session
// @Description  Loads the paged document the token is scoped to. Opening again with the same mountId replaces the previous session.
// @Tags         viewer
// @Accept       json
// @Produce      json
// @Success      201  {object}  render.Snapshot
// @Failure      502  {object}  errorPayload
// @Router       /viewer/sessions [post]
func (h *ViewerHandler) Open() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := h.claims(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		if !claims.ContentType.Paged() {
			return writeError(c, fiber.StatusBadRequest, "NOT_PAGED", "content is not a paged document")
		}

		var req openSessionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
			}
		}

		s, err := h.sessions.Open(c.UserContext(), render.OpenRequest{
			MountID: req.MountID,
			Grant: render.Grant{
				ID:        claims.GrantID(),
				Subject:   claims.Subject,
				Locator:   claims.Locator,
				ExpiresAt: claims.ExpiresAt.Time,
				Watermark: claims.Scope.WatermarkEnabled,
			},
			WatermarkText: shield.WatermarkText(claims.Subject, claims.GrantID()),
		})
		if err != nil {
			if s != nil {
				return writeSessionError(c, err, s.Snapshot())
			}
			return writeDomainError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(s.Snapshot())
	}
}

// State returns the session snapshot.
func (h *ViewerHandler) State() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, _, err := h.lookup(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(s.Snapshot())
	}
}

func (h *ViewerHandler) sendFrame(c *fiber.Ctx, s *render.Session) error {
	frame, err := s.Frame(c.UserContext())
	if err != nil {
		return writeSessionError(c, err, s.Snapshot())
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, "inline")
	return c.Send(frame)
}

// Frame godoc
// @Summary  Current page as a watermarked PNG
// @Tags     viewer
// @Produce  image/png
// @Param    id  path  string  true  "Session id"
// @Success  200
// @Failure  409  {object}  errorPayload
// @Router   /viewer/sessions/{id}/frame [get]
func (h *ViewerHandler) Frame() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, _, err := h.lookup(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		return h.sendFrame(c, s)
	}
}

// Page jumps to page n, optionally sets the zoom from ?scale=, and renders.
func (h *ViewerHandler) Page() fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := strconv.Atoi(c.Params("n"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "page must be an integer")
		}
		var scale float64
		if raw := c.Query("scale"); raw != "" {
			if scale, err = strconv.ParseFloat(raw, 64); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_SCALE", "scale must be a number")
			}
		}

		s, _, err := h.lookup(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		if scale != 0 {
			if _, err := s.SetZoom(scale); err != nil {
				return writeSessionError(c, err, s.Snapshot())
			}
		}
		if _, err := s.GoTo(n); err != nil {
			return writeSessionError(c, err, s.Snapshot())
		}
		return h.sendFrame(c, s)
	}
}

func (h *ViewerHandler) navigate(move func(*render.Session) (render.Snapshot, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, _, err := h.lookup(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		snap, err := move(s)
		if err != nil {
			return writeSessionError(c, err, snap)
		}
		return c.JSON(snap)
	}
}

func (h *ViewerHandler) Next() fiber.Handler { return h.navigate((*render.Session).Next) }
func (h *ViewerHandler) Prev() fiber.Handler { return h.navigate((*render.Session).Prev) }
func (h *ViewerHandler) ZoomIn() fiber.Handler { return h.navigate((*render.Session).ZoomIn) }
func (h *ViewerHandler) ZoomOut() fiber.Handler { return h.navigate((*render.Session).ZoomOut) }

type zoomRequest struct {
	Scale *float64 `json:"scale"`
}

// SetZoom sets an explicit scale; it is clamped to the viewer bounds.
func (h *ViewerHandler) SetZoom() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req zoomRequest
		if err := c.BodyParser(&req); err != nil || req.Scale == nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_SCALE", "scale is required")
		}
		scale := *req.Scale
		return h.navigate(func(s *render.Session) (render.Snapshot, error) {
			return s.SetZoom(scale)
		})(c)
	}
}

// Retry reloads a session that failed to load.
func (h *ViewerHandler) Retry() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, _, err := h.lookup(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		if err := s.Retry(c.UserContext()); err != nil {
			return writeSessionError(c, err, s.Snapshot())
		}
		return c.JSON(s.Snapshot())
	}
}

// Events godoc
// @Summary  Ask the session's shield whether to suppress a client interaction
// @Tags     viewer
// @Accept   json
// @Produce  json
// @Success  200  {object}  shield.Decision
// @Router   /viewer/sessions/{id}/events [post]
func (h *ViewerHandler) Events() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var ev shield.Event
		if err := c.BodyParser(&ev); err != nil || ev.Kind == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_EVENT", "kind is required")
		}

		s, claims, err := h.lookup(c)
		if err != nil {
			return writeDomainError(c, err)
		}

		d := s.Scope().Handle(ev)
		if d.Prevented {
			h.metrics.InteractionSuppressed.WithLabelValues(string(ev.Kind)).Inc()
			h.recorder.Emit(events.NewSecurityEvent(events.InteractionSuppressed, claims.GrantID(), claims.Subject, s.ID(), d.Reason))
		}
		return c.JSON(d)
	}
}

type closeSessionRequest struct {
	CompletionPercent float64 `json:"completionPercent"`
}

// Close ends the session, releases the document and records how long it was open. The token
// only has to be well signed; it may have expired while the document was on screen.
func (h *ViewerHandler) Close() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req closeSessionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
			}
		}

		claims, err := h.closingClaims(c)
		if err != nil {
			return writeDomainError(c, err)
		}
		s, err := h.sessions.Close(c.Params("id"), claims.GrantID())
		if err != nil {
			return writeDomainError(c, err)
		}

		h.recorder.RecordProgress(claims.GrantID(), h.NowFunc().Sub(s.OpenedAt()), req.CompletionPercent)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
