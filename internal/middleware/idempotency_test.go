package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotentApp(t *testing.T, calls *int32) *fiber.App {
	t.Helper()

	client := testRedisClient(t)
	idem := NewIdempotencyMiddleware(client, NewCircuitBreaker("redis", quietLogger()), time.Minute, quietLogger())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(false)})
	app.Post("/items", idem.Handle(), func(c *fiber.Ctx) error {
		n := atomic.AddInt32(calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"n": n})
	})
	return app
}

func postItem(t *testing.T, app *fiber.App, key, body string) (int, string, string) {
	t.Helper()

	req := httptest.NewRequest("POST", "/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data), resp.Header.Get("X-Idempotency-Cached")
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	var calls int32
	app := newIdempotentApp(t, &calls)
	key := uuid.NewString()

	status, first, cached := postItem(t, app, key, `{"a":1}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Empty(t, cached)

	status, second, cached := postItem(t, app, key, `{"a":1}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, first, second)
	assert.Equal(t, "true", cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_ConflictOnDifferentBody(t *testing.T) {
	var calls int32
	app := newIdempotentApp(t, &calls)
	key := uuid.NewString()

	status, _, _ := postItem(t, app, key, `{"a":1}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body, _ := postItem(t, app, key, `{"a":2}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, body, "IDEMPOTENCY_CONFLICT")
}

func TestIdempotency_HeaderOptional(t *testing.T) {
	var calls int32
	app := newIdempotentApp(t, &calls)

	postItem(t, app, "", `{"a":1}`)
	postItem(t, app, "", `{"a":1}`)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	status, _, _ := postItem(t, app, "not-a-uuid", `{"a":1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
