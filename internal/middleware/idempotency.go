package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/metrics"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

const idempotencyHeader = "Idempotency-Key"

// IdempotencyMiddleware replays the first successful response for a repeated
// POST carrying the same Idempotency-Key. Requests without the header pass
// through untouched.
type IdempotencyMiddleware struct {
	redisClient redis.UniversalClient
	breaker     *CircuitBreaker
	logger      *logrus.Logger
	ttl         time.Duration
}

type IdempotencyRecord struct {
	Fingerprint string            `json:"fingerprint"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	CreatedAt   time.Time         `json:"created_at"`
}

func NewIdempotencyMiddleware(redisClient redis.UniversalClient, breaker *CircuitBreaker, ttl time.Duration, logger *logrus.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &IdempotencyMiddleware{
		redisClient: redisClient,
		breaker:     breaker,
		logger:      logger,
		ttl:         ttl,
	}
}

// Handle must run after the auth gate on protected routes so keys are scoped
// to the caller.
func (i *IdempotencyMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		idempotencyKey := c.Get(idempotencyHeader)
		if idempotencyKey == "" {
			return c.Next()
		}
		if _, err := uuid.Parse(idempotencyKey); err != nil {
			return apperrors.NewAppError(apperrors.CodeBadRequest, "Idempotency-Key must be a valid UUID", nil)
		}

		ctx := c.UserContext()
		redisKey := i.redisKey(c, idempotencyKey)
		fingerprint := i.generateFingerprint(c)

		existing, err := i.getRecord(ctx, redisKey)
		if err != nil {
			// Redis trouble must not block writes
			i.logger.WithError(err).Warn("Failed to get idempotency record")
			return c.Next()
		}

		if existing != nil {
			if existing.Fingerprint != fingerprint {
				metrics.RecordIdempotencyHit("conflict")
				return apperrors.NewAppError(apperrors.CodeIdempotencyConflict,
					"Request body differs from original request with same Idempotency-Key", nil)
			}
			metrics.RecordIdempotencyHit("hit")
			return i.returnCachedResponse(c, existing)
		}
		metrics.RecordIdempotencyHit("miss")

		if err := c.Next(); err != nil {
			return err
		}

		statusCode := c.Response().StatusCode()
		if statusCode < 200 || statusCode >= 300 {
			return nil
		}

		record := IdempotencyRecord{
			Fingerprint: fingerprint,
			StatusCode:  statusCode,
			Headers:     make(map[string]string),
			Body:        string(c.Response().Body()),
			CreatedAt:   time.Now(),
		}
		c.Response().Header.VisitAll(func(key, value []byte) {
			if shouldCacheHeader(string(key)) {
				record.Headers[string(key)] = string(value)
			}
		})

		if err := i.storeRecord(ctx, redisKey, &record); err != nil {
			i.logger.WithError(err).WithField("idempotency_key", idempotencyKey).Error("Failed to store idempotency record")
		} else {
			i.logger.WithFields(logrus.Fields{
				"idempotency_key": idempotencyKey,
				"status_code":     statusCode,
			}).Debug("Stored idempotency record")
		}

		return nil
	}
}

func (i *IdempotencyMiddleware) redisKey(c *fiber.Ctx, idempotencyKey string) string {
	scope := GetUserID(c)
	if scope == "" {
		scope = "anonymous"
	}
	return fmt.Sprintf("idempotency:%s:%s", scope, idempotencyKey)
}

// generateFingerprint hashes everything that makes two requests "the same"
func (i *IdempotencyMiddleware) generateFingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte(":"))
	h.Write([]byte(c.Path()))
	h.Write([]byte(":"))
	h.Write(c.Request().URI().QueryString())
	h.Write([]byte(":"))
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func (i *IdempotencyMiddleware) getRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var data string
	start := time.Now()
	err := i.breaker.Execute(ctx, func() error {
		var err error
		data, err = i.redisClient.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		metrics.RecordRedisOperation("get", "failure", time.Since(start))
		return nil, err
	}
	metrics.RecordRedisOperation("get", "success", time.Since(start))

	if data == "" {
		return nil, nil
	}

	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &record, nil
}

func (i *IdempotencyMiddleware) storeRecord(ctx context.Context, key string, record *IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	start := time.Now()
	err = i.breaker.Execute(ctx, func() error {
		// First writer wins
		return i.redisClient.SetNX(ctx, key, data, i.ttl).Err()
	})
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordRedisOperation("set", status, time.Since(start))
	return err
}

func (i *IdempotencyMiddleware) returnCachedResponse(c *fiber.Ctx, record *IdempotencyRecord) error {
	for key, value := range record.Headers {
		c.Set(key, value)
	}
	c.Set("X-Idempotency-Cached", "true")

	return c.Status(record.StatusCode).SendString(record.Body)
}

func shouldCacheHeader(header string) bool {
	switch strings.ToLower(header) {
	case "content-type", "location":
		return true
	}
	return false
}
