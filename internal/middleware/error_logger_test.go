package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

func TestRedactPasswords(t *testing.T) {
	in := `{"email":"a@x.com","password":"hunter2","currentPassword":"old \"pw\"","newPassword":"new"}`
	out := RedactPasswords(in)

	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "old")
	assert.NotContains(t, out, `"new"`)
	assert.Contains(t, out, `"email":"a@x.com"`)
	assert.Equal(t, 3, strings.Count(out, "[REDACTED]"))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
}

func TestErrorLogger_LogsRenderedStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(false)})
	app.Use(NewErrorLoggerMiddleware(logger).Handle())
	app.Post("/login", func(c *fiber.Ctx) error {
		return apperrors.NewAppError(apperrors.CodeInvalidCredentials, "Invalid credentials", nil).WithStatus(fiber.StatusUnauthorized)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return assert.AnError
	})

	req := httptest.NewRequest("POST", "/login", strings.NewReader(`{"email":"a@x.com","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, float64(401), entry["status_code"])
	assert.NotContains(t, buf.String(), "hunter2")

	buf.Reset()
	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
}

func TestErrorHandler_ExposesCauseOnlyWhenAllowed(t *testing.T) {
	for _, expose := range []bool{true, false} {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(expose)})
		app.Get("/", func(c *fiber.Ctx) error {
			return apperrors.Internal("Server error while fetching bookmarks", assert.AnError)
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Server error while fetching bookmarks", body["message"])
		if expose {
			assert.Equal(t, assert.AnError.Error(), body["error"])
		} else {
			assert.NotContains(t, body, "error")
		}
	}
}

func TestErrorHandler_FiberErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(false)})
	app.Get("/", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Request Entity Too Large")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, string(apperrors.CodeBadRequest), body["code"])
}
