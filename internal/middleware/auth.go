package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/auth"
	"github.com/reelmark/bookmarks-api/internal/models"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

const (
	localsUser   = "user"
	localsUserID = "user_id"

	bearerScheme = "Bearer"
)

// UserLookup resolves a verified user id to a live account
type UserLookup interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

// AuthMiddleware verifies bearer tokens issued by auth.TokenService
type AuthMiddleware struct {
	tokens *auth.TokenService
	users  UserLookup
	logger *logrus.Logger
}

func NewAuthMiddleware(tokens *auth.TokenService, users UserLookup, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

// Authenticate rejects the request unless it carries a valid token for an
// existing user. The resolved user is stored in locals.
func (a *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperrors.Unauthenticated("Access denied. No token provided.")
		}

		scheme, tokenString, _ := strings.Cut(strings.TrimSpace(authHeader), " ")
		if !strings.EqualFold(scheme, bearerScheme) {
			return apperrors.Unauthenticated("Invalid token")
		}

		tokenString = strings.TrimSpace(tokenString)
		if tokenString == "" {
			return apperrors.Unauthenticated("Access denied. No token provided.")
		}

		userID, err := a.tokens.Verify(tokenString)
		if err != nil {
			a.logger.WithError(err).WithField("path", c.Path()).Debug("Token validation failed")
			if errors.Is(err, auth.ErrTokenExpired) {
				return apperrors.Unauthenticated("Token expired")
			}
			return apperrors.Unauthenticated("Invalid token")
		}

		user, err := a.users.FindByID(c.UserContext(), userID)
		if err != nil {
			return apperrors.Internal("Server error during authentication", err)
		}
		if user == nil {
			// Token outlived its account
			return apperrors.Unauthenticated("Invalid token")
		}

		c.Locals(localsUser, user)
		c.Locals(localsUserID, user.UserID)

		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(localsUserID).(string); ok {
		return userID
	}
	return ""
}

// GetUser returns the authenticated user, or nil on public routes
func GetUser(c *fiber.Ctx) *models.User {
	if user, ok := c.Locals(localsUser).(*models.User); ok {
		return user
	}
	return nil
}
