package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	require.NoError(t, Init())
	require.NoError(t, Init())
}

func TestRecordOperations(t *testing.T) {
	before := testutil.ToFloat64(bookmarkOperationsTotal.WithLabelValues("add", "success"))
	RecordBookmarkOperation("add", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(bookmarkOperationsTotal.WithLabelValues("add", "success")))

	before = testutil.ToFloat64(authOperationsTotal.WithLabelValues("login", "rejected"))
	RecordAuthOperation("login", "rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(authOperationsTotal.WithLabelValues("login", "rejected")))

	before = testutil.ToFloat64(storeOperationsTotal.WithLabelValues("GetUser", "success"))
	RecordStoreOperation("GetUser", "success", 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(storeOperationsTotal.WithLabelValues("GetUser", "success")))
}

func TestHTTPMetricsMiddlewareAndHandler(t *testing.T) {
	require.NoError(t, Init())

	app := fiber.New()
	app.Use(HTTPMetricsMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", PrometheusHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_server_requests_total{method="GET",route="/ping",status_code="200"}`)
}
