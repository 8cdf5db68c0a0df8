package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/config"
	"github.com/reelmark/bookmarks-api/internal/logging"
	"github.com/reelmark/bookmarks-api/internal/metrics"
	"github.com/reelmark/bookmarks-api/internal/middleware"
	"github.com/reelmark/bookmarks-api/internal/services"
	"github.com/reelmark/bookmarks-api/internal/store"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

const readinessTimeout = 2 * time.Second

// Dependencies carries everything the HTTP layer needs
type Dependencies struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Middleware *middleware.Manager
	Accounts   *services.AccountService
	Bookmarks  *services.BookmarkService
	Store      store.Pinger
}

// Setup configures all API routes
func Setup(app *fiber.App, deps Dependencies) {
	authHandler := NewAuthHandler(deps.Accounts, deps.Logger)
	bookmarkHandler := NewBookmarkHandler(deps.Bookmarks, deps.Logger)

	// Health check endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/health", healthCheck)
	app.Get("/readyz", readinessCheck(deps))
	app.Get("/version", versionHandler(deps.Config))

	// Metrics endpoint (no auth required)
	app.Get(deps.Config.Observability.MetricsPath, metrics.PrometheusHandler())

	// Swagger documentation endpoint (no auth required)
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api")

	// Error logging sits inside the metrics middleware so metrics see the
	// rendered status
	api.Use(metrics.HTTPMetricsMiddleware())
	api.Use(deps.Middleware.ErrorLogger.Handle())

	gate := deps.Middleware.Auth.Authenticate()
	idempotent := deps.Middleware.IdempotencyHandler()

	// Public routes are limited per client IP. Protected routes run the
	// limiter after the gate so it keys on the user instead.
	limit := deps.Middleware.RateLimit.Handle()

	api.Get("/test-cors", limit, corsCheck)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/signup", limit, idempotent, authHandler.Signup)
	authRoutes.Post("/login", limit, authHandler.Login)
	authRoutes.Get("/profile", gate, limit, authHandler.GetProfile)
	authRoutes.Put("/profile", gate, limit, authHandler.UpdateProfile)
	authRoutes.Delete("/profile", gate, limit, authHandler.DeleteAccount)
	authRoutes.Put("/change-password", gate, limit, authHandler.ChangePassword)
	authRoutes.Get("/verify", gate, limit, authHandler.Verify)

	// Idempotency keys are scoped per user, so the gate runs first
	bookmarkRoutes := api.Group("/bookmarks", gate, limit)
	bookmarkRoutes.Get("/", bookmarkHandler.List)
	bookmarkRoutes.Post("/", idempotent, bookmarkHandler.Add)
	bookmarkRoutes.Get("/check/:movieId", bookmarkHandler.Check)
	bookmarkRoutes.Delete("/:movieId", bookmarkHandler.Remove)

	// 404 handler
	app.Use(notFoundHandler)
}

// healthCheck returns the health status of the service
// @Summary Health check
// @Description Check if the service is running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Router /healthz [get]
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Server is running",
		"timestamp": time.Now().UTC(),
		"cors":      "enabled",
	})
}

// corsCheck echoes the caller's origin
// @Summary CORS check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /test-cors [get]
func corsCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": "CORS is working!",
		"origin":  c.Get(fiber.HeaderOrigin),
		"method":  c.Method(),
	})
}

// readinessCheck checks if the service is ready to accept traffic
// @Summary Readiness check
// @Description Check that the store and, when enabled, Redis are reachable
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Ready"
// @Failure 503 {object} map[string]interface{} "Not ready"
// @Router /readyz [get]
func readinessCheck(deps Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			deps.Logger.WithError(err).Warn("Store readiness check failed")
			return notReady(c, "store unavailable")
		}

		if deps.Middleware.RedisClient != nil {
			redisHealthCheck := middleware.RedisHealthCheck(deps.Middleware.RedisClient, deps.Logger)
			if err := redisHealthCheck(ctx); err != nil {
				return notReady(c, "redis unavailable")
			}
		}

		resp := fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   logging.ServiceName,
		}
		if deps.Middleware.RedisBreaker != nil {
			resp["redis_breaker"] = deps.Middleware.RedisBreaker.GetStats()
		}
		return c.JSON(resp)
	}
}

func notReady(c *fiber.Ctx, reason string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"status":    "not ready",
		"reason":    reason,
		"timestamp": time.Now().UTC(),
	})
}

// versionHandler returns version information
// @Summary Version information
// @Description Get service version and build information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Version info"
// @Router /version [get]
func versionHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     logging.ServiceName,
			"version":     logging.GetVersion(),
			"environment": cfg.Server.Environment,
		})
	}
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return apperrors.NewAppErrorf(apperrors.CodeNotFound, nil, "Route %s %s not found", c.Method(), c.OriginalURL())
}
