package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		rid := c.Locals(RequestIDLocalKey)
		return c.SendString(rid.(string))
	})

	t.Run("should generate new request id if not present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		ridHeader := resp.Header.Get(RequestIDHeader)
		assert.NotEmpty(t, ridHeader)

		// Check if it's readable in handler (from response body)
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, ridHeader, buf.String())
	})

	t.Run("should preserve existing request id", func(t *testing.T) {
		existingID := "test-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)

		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, existingID, resp.Header.Get(RequestIDHeader))

		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, existingID, buf.String())
	})

	t.Run("should replace unsafe request id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", 200))

		resp, _ := app.Test(req)

		got := resp.Header.Get(RequestIDHeader)
		assert.Len(t, got, 36)
	})
}

func TestValidRequestID(t *testing.T) {
	assert.True(t, validRequestID("abc-123"))
	assert.False(t, validRequestID(""))
	assert.False(t, validRequestID("has space"))
	assert.False(t, validRequestID("tab\there"))
	assert.False(t, validRequestID(strings.Repeat("x", maxRequestIDLen+1)))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	loc := time.UTC

	// Logger usually depends on RequestID for request_id field
	app.Use(RequestID())
	app.Use(LoggerWithWriter(&buf, loc))

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// Verify log output
	var logData map[string]any
	err := json.Unmarshal(buf.Bytes(), &logData)
	assert.NoError(t, err)

	assert.NotEmpty(t, logData["request_id"])
	assert.Equal(t, "GET", logData["method"])
	assert.Equal(t, "/test", logData["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), logData["status"])
	assert.NotNil(t, logData["latency"])
	assert.NotEmpty(t, logData["ts"])
}

func TestLogger_ErrorStatusAndSubject(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Subject())
	app.Use(LoggerWithWriter(&buf, time.UTC))

	app.Get("/uploads/*", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusInternalServerError, "boom")
	})

	req := httptest.NewRequest("GET", "/uploads/videos/a.mp4?token=secret", nil)
	req.Header.Set(SubjectHeader, "student-42")
	_, _ = app.Test(req)

	var logData map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
	assert.Equal(t, "error", logData["level"])
	assert.Equal(t, float64(500), logData["status"])
	assert.Equal(t, "student-42", logData["subject"])
	assert.NotContains(t, buf.String(), "secret")
}

func TestLogger_InternalError(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(LoggerWithWriter(&buf, time.UTC))
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals(ErrorLocalKey, "persist grant: connection reset")
		return c.SendStatus(fiber.StatusInternalServerError)
	})

	_, _ = app.Test(httptest.NewRequest("GET", "/x", nil))

	var logData map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
	assert.Equal(t, "persist grant: connection reset", logData["error"])
}

func TestSubject(t *testing.T) {
	app := fiber.New()
	app.Use(Subject())
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(SubjectFromCtx(c))
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(SubjectHeader, "  student-42 ")
	resp, _ := app.Test(req)
	body := new(bytes.Buffer)
	body.ReadFrom(resp.Body)
	assert.Equal(t, "student-42", body.String())

	resp, _ = app.Test(httptest.NewRequest("GET", "/me", nil))
	body.Reset()
	body.ReadFrom(resp.Body)
	assert.Empty(t, body.String())
}

func TestInternalKey(t *testing.T) {
	deny := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusForbidden) }

	app := fiber.New()
	app.Post("/internal", InternalKey("k3y", deny), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	disabled := fiber.New()
	disabled.Post("/internal", InternalKey("", deny), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest("POST", "/internal", nil)
	req.Header.Set(InternalKeyHeader, "k3y")
	resp, _ := app.Test(req)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest("POST", "/internal", nil)
	req.Header.Set(InternalKeyHeader, "wrong")
	resp, _ = app.Test(req)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("POST", "/internal", nil)
	resp, _ = disabled.Test(req)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
