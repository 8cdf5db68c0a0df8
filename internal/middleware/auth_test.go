package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmark/bookmarks-api/internal/auth"
	"github.com/reelmark/bookmarks-api/internal/models"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

type mapLookup map[string]*models.User

func (m mapLookup) FindByID(_ context.Context, userID string) (*models.User, error) {
	return m[userID], nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newGateApp(t *testing.T, tokens *auth.TokenService, users UserLookup) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(false)})
	gate := NewAuthMiddleware(tokens, users, quietLogger())
	app.Get("/me", gate.Authenticate(), func(c *fiber.Ctx) error {
		user := GetUser(c)
		return c.JSON(fiber.Map{"id": user.UserID, "user_id": GetUserID(c)})
	})
	return app
}

func doGet(t *testing.T, app *fiber.App, authHeader string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest("GET", "/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestAuthenticate(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := issuedAt
	tokens, err := auth.NewTokenService("gate-secret", auth.DefaultTokenTTL,
		auth.WithIssuer("bookmarks-api"),
		auth.WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)

	users := mapLookup{"u1": {UserID: "u1", Name: "Alice", Email: "a@x.com"}}
	app := newGateApp(t, tokens, users)

	valid, err := tokens.Issue("u1")
	require.NoError(t, err)
	orphan, err := tokens.Issue("deleted-user")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		status, body := doGet(t, app, "Bearer "+valid)
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "u1", body["id"])
		assert.Equal(t, "u1", body["user_id"])
	})

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Access denied. No token provided."},
		{"empty bearer", "Bearer ", "Access denied. No token provided."},
		{"wrong scheme", "Basic abc", "Invalid token"},
		{"garbage token", "Bearer not-a-jwt", "Invalid token"},
		{"user no longer exists", "Bearer " + orphan, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doGet(t, app, tt.header)
			assert.Equal(t, fiber.StatusUnauthorized, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(apperrors.CodeUnauthenticated), body["code"])
			assert.Equal(t, tt.message, body["message"])
		})
	}

	t.Run("expired token", func(t *testing.T) {
		clock = issuedAt.Add(7*24*time.Hour + time.Hour)
		defer func() { clock = issuedAt }()

		status, body := doGet(t, app, "Bearer "+valid)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "Token expired", body["message"])
	})
}

func TestGetUserOnPublicRoute(t *testing.T) {
	app := fiber.New()
	app.Get("/public", func(c *fiber.Ctx) error {
		assert.Nil(t, GetUser(c))
		assert.Empty(t, GetUserID(c))
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/public", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
