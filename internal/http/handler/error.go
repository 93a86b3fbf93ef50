package handler

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"contentgate/internal/http/middleware"
	"contentgate/internal/render"
	"contentgate/internal/service"
)

// Actions offered to the user alongside an error.
const (
	ActionRetry  = "retry"
	ActionClose  = "close"
	ActionReload = "reload"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string           `json:"request_id"`
	Error     errorEnvelope    `json:"error"`
	Session   *render.Snapshot `json:"session,omitempty"`
}

type errorEnvelope struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "EXPIRED", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
// - actions: the ways out offered to the user; a failure always has at least "close"
func writeError(c *fiber.Ctx, status int, code, message string, actions ...string) error {
	if len(actions) == 0 {
		actions = []string{ActionClose}
	}
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
			Actions: actions,
		},
	}
	return c.Status(status).JSON(res)
}

// apiError is the client-facing rendition of a domain error.
type apiError struct {
	Status  int
	Code    string
	Actions []string
	Message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{service.ErrInvalidInput, apiError{Status: fiber.StatusBadRequest, Code: "INVALID_INPUT", Actions: []string{ActionClose}}},
	{service.ErrUnauthenticated, apiError{Status: fiber.StatusUnauthorized, Code: "UNAUTHENTICATED", Actions: []string{ActionReload, ActionClose}}},
	{service.ErrExpired, apiError{Status: fiber.StatusUnauthorized, Code: "EXPIRED", Actions: []string{ActionReload, ActionClose}}},
	{service.ErrNotEntitled, apiError{Status: fiber.StatusForbidden, Code: "NOT_ENTITLED", Actions: []string{ActionClose}}},
	{service.ErrResourceSuspended, apiError{Status: fiber.StatusForbidden, Code: "SUSPENDED", Actions: []string{ActionClose}}},
	{service.ErrScopeMismatch, apiError{Status: fiber.StatusForbidden, Code: "SCOPE_MISMATCH", Actions: []string{ActionClose}}},
	{service.ErrRevoked, apiError{Status: fiber.StatusForbidden, Code: "REVOKED", Actions: []string{ActionClose}}},
	{service.ErrViewerOnly, apiError{Status: fiber.StatusForbidden, Code: "VIEWER_ONLY", Actions: []string{ActionClose}}},
	{service.ErrGrantNotOwned, apiError{Status: fiber.StatusForbidden, Code: "GRANT_NOT_OWNED", Actions: []string{ActionClose}}},
	{service.ErrResourceNotFound, apiError{Status: fiber.StatusNotFound, Code: "NOT_FOUND", Actions: []string{ActionClose}}},
	{service.ErrNotFound, apiError{Status: fiber.StatusNotFound, Code: "NOT_FOUND", Actions: []string{ActionClose}}},
	{service.ErrGrantNotFound, apiError{Status: fiber.StatusNotFound, Code: "GRANT_NOT_FOUND", Actions: []string{ActionClose}}},
	{service.ErrRangeNotSatisfiable, apiError{Status: fiber.StatusRequestedRangeNotSatisfiable, Code: "RANGE_NOT_SATISFIABLE", Actions: []string{ActionReload}}},
	{service.ErrRevocationDisabled, apiError{Status: fiber.StatusServiceUnavailable, Code: "REVOCATION_DISABLED", Actions: []string{ActionClose}}},

	{render.ErrNotFound, apiError{Status: fiber.StatusNotFound, Code: "NOT_FOUND", Actions: []string{ActionClose}}},
	{render.ErrAuth, apiError{Status: fiber.StatusUnauthorized, Code: "EXPIRED", Actions: []string{ActionReload, ActionClose}}},
	{render.ErrLoad, apiError{Status: fiber.StatusBadGateway, Code: "LOAD_ERROR", Actions: []string{ActionRetry, ActionClose}}},
	{render.ErrSuperseded, apiError{Status: fiber.StatusConflict, Code: "SUPERSEDED", Actions: []string{ActionRetry}}},
	{render.ErrPageOutOfRange, apiError{Status: fiber.StatusBadRequest, Code: "PAGE_OUT_OF_RANGE", Actions: []string{ActionClose}}},
	{render.ErrSessionClosed, apiError{Status: fiber.StatusGone, Code: "SESSION_CLOSED", Actions: []string{ActionReload}}},
	{render.ErrSessionNotFound, apiError{Status: fiber.StatusNotFound, Code: "SESSION_NOT_FOUND", Actions: []string{ActionReload}}},
	{render.ErrCapacity, apiError{Status: fiber.StatusServiceUnavailable, Code: "CAPACITY", Actions: []string{ActionRetry, ActionClose}}},
}

// classify finds the table entry for err. The message is the sentinel's own text, so
// wrapped storage or decoder details never reach the client.
func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			out := e.apiError
			out.Message = e.target.Error()
			return out
		}
	}
	return apiError{
		Status:  fiber.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Actions: []string{ActionRetry, ActionClose},
		Message: "internal server error",
	}
}

// writeDomainError maps a service or render error onto the envelope.
func writeDomainError(c *fiber.Ctx, err error) error {
	e := classify(err)
	noteInternal(c, e, err)
	return writeError(c, e.Status, e.Code, e.Message, e.Actions...)
}

// writeSessionError is writeDomainError with the session state attached, so a failed viewer
// can still offer retry and close on the session it has.
func writeSessionError(c *fiber.Ctx, err error, snap render.Snapshot) error {
	e := classify(err)
	noteInternal(c, e, err)
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    e.Code,
			Message: e.Message,
			Actions: e.Actions,
		},
		Session: &snap,
	}
	return c.Status(e.Status).JSON(res)
}

// noteInternal hands the full error to the access log for server-side failures.
func noteInternal(c *fiber.Ctx, e apiError, err error) {
	if e.Status >= fiber.StatusInternalServerError {
		c.Locals(middleware.ErrorLocalKey, err.Error())
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			if status >= 400 && status < 500 {
				return writeError(c, status, "BAD_REQUEST", fmt.Sprintf("request rejected (%d)", status))
			}
			return writeError(c, status, "INTERNAL_ERROR", "internal server error", ActionRetry, ActionClose)
		}
	}
}
