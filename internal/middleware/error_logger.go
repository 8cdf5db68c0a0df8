package middleware

import (
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/logging"
)

const maxLoggedBody = 500

// passwordFields matches JSON string members whose key mentions a password
var passwordFields = regexp.MustCompile(`(?i)("[a-z_]*password"\s*:\s*)"(?:[^"\\]|\\.)*"`)

type ErrorLoggerMiddleware struct {
	logger *logrus.Logger
}

func NewErrorLoggerMiddleware(logger *logrus.Logger) *ErrorLoggerMiddleware {
	return &ErrorLoggerMiddleware{
		logger: logger,
	}
}

// Handle logs 4xx and 5xx responses with request context. Errors returned
// downstream are rendered here so the logged status is the one sent.
func (e *ErrorLoggerMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()

		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		statusCode := c.Response().StatusCode()
		if statusCode < 400 {
			return nil
		}

		logFields := logrus.Fields{
			"status_code":   statusCode,
			"method":        c.Method(),
			"path":          c.Path(),
			"ip":            c.IP(),
			"user_agent":    c.Get(fiber.HeaderUserAgent),
			"request_id":    c.GetRespHeader(fiber.HeaderXRequestID),
			"response_size": len(c.Response().Body()),
		}

		if traceID := TraceID(c.UserContext()); traceID != "" {
			logFields["trace_id"] = traceID
		}

		if userID := GetUserID(c); userID != "" {
			logFields["user_id"] = userID
		}

		if idempotencyKey := c.Get(idempotencyHeader); idempotencyKey != "" {
			logFields["idempotency_key"] = idempotencyKey
		}

		if len(c.Request().URI().QueryString()) > 0 {
			logFields["query"] = string(c.Request().URI().QueryString())
		}

		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
			if body := truncate(RedactPasswords(string(c.Body()))); body != "" {
				logFields["request_body"] = body
			}
		}

		if responseBody := truncate(string(c.Response().Body())); responseBody != "" {
			logFields["response_body"] = responseBody
		}

		latencyMs := float64(time.Since(startTime).Microseconds()) / 1000
		logEntry := logging.WithRequest(e.logger, c.Method(), c.Path(), statusCode, latencyMs).WithFields(logFields)
		if statusCode >= 500 {
			if chainErr != nil {
				logEntry = logEntry.WithError(chainErr)
			}
			logEntry.Error("Server error response")
		} else {
			logEntry.Warn("Client error response")
		}

		return nil
	}
}

// RedactPasswords masks the values of password-like JSON members
func RedactPasswords(body string) string {
	return passwordFields.ReplaceAllString(body, `$1"[REDACTED]"`)
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "...(truncated)"
	}
	return s
}
