package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/middleware"
	"github.com/reelmark/bookmarks-api/internal/models"
	"github.com/reelmark/bookmarks-api/internal/services"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

// AuthHandler handles authentication and profile endpoints
type AuthHandler struct {
	accounts *services.AccountService
	logger   *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *services.AccountService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// parseBody decodes the request body into out. An empty body leaves out
// zeroed so field validation reports what is missing.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewAppError(apperrors.CodeBadRequest, "Invalid request body", err)
	}
	return nil
}

// Signup handles user registration
// @Summary User registration
// @Description Create an account and return a JWT token
// @Tags Auth
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "UUID idempotency key"
// @Param request body models.SignupRequest true "Registration data"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} errors.ErrorResponse "Missing fields or email in use"
// @Failure 500 {object} errors.ErrorResponse "Internal error"
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req models.SignupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.accounts.Signup(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(models.AuthResponse{
		Success: true,
		Message: "User created successfully",
		Token:   result.Token,
		User:    result.User.Public(),
	})
}

// Login handles user login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} errors.ErrorResponse "Invalid request"
// @Failure 401 {object} errors.ErrorResponse "Invalid credentials"
// @Failure 500 {object} errors.ErrorResponse "Internal error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.accounts.Login(c.UserContext(), req)
	if err != nil {
		return err
	}

	h.logger.WithField("user_id", result.User.UserID).Info("User logged in successfully")

	return c.JSON(models.AuthResponse{
		Success: true,
		Message: "Login successful",
		Token:   result.Token,
		User:    result.User.Public(),
	})
}

// GetProfile returns the caller's profile
// @Summary Get profile
// @Tags Auth
// @Produce json
// @Security Bearer
// @Success 200 {object} models.ProfileResponse
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Failure 404 {object} errors.ErrorResponse "User not found"
// @Router /auth/profile [get]
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	user, err := h.accounts.GetProfile(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return err
	}

	return c.JSON(models.ProfileResponse{
		Success: true,
		User:    user.Public(),
	})
}

// UpdateProfile changes the caller's name and email
// @Summary Update profile
// @Tags Auth
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body models.UpdateProfileRequest true "New name and email"
// @Success 200 {object} models.ProfileResponse
// @Failure 400 {object} errors.ErrorResponse "Validation error or email in use"
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Failure 404 {object} errors.ErrorResponse "User not found"
// @Router /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	var req models.UpdateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.accounts.UpdateProfile(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return err
	}

	return c.JSON(models.ProfileResponse{
		Success: true,
		Message: "Profile updated successfully",
		User:    user.Public(),
	})
}

// ChangePassword replaces the caller's password
// @Summary Change password
// @Tags Auth
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body models.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} errors.ErrorResponse "Validation error or wrong password"
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Router /auth/change-password [put]
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req models.ChangePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	userID := middleware.GetUserID(c)
	if err := h.accounts.ChangePassword(c.UserContext(), userID, req); err != nil {
		return err
	}

	return c.JSON(models.MessageResponse{
		Success: true,
		Message: "Password changed successfully",
	})
}

// DeleteAccount removes the caller and all of their bookmarks
// @Summary Delete account
// @Tags Auth
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body models.DeleteAccountRequest true "Password confirmation"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} errors.ErrorResponse "Missing or wrong password"
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Router /auth/profile [delete]
func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	var req models.DeleteAccountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	userID := middleware.GetUserID(c)
	if err := h.accounts.DeleteAccount(c.UserContext(), userID, req); err != nil {
		return err
	}

	return c.JSON(models.MessageResponse{
		Success: true,
		Message: "Account deleted successfully",
	})
}

// Verify confirms the bearer token and echoes its user
// @Summary Verify token
// @Tags Auth
// @Produce json
// @Security Bearer
// @Success 200 {object} models.ProfileResponse
// @Failure 401 {object} errors.ErrorResponse "Invalid or expired token"
// @Router /auth/verify [get]
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return apperrors.Unauthenticated("Invalid token")
	}

	return c.JSON(models.ProfileResponse{
		Success: true,
		Message: "Token is valid",
		User:    user.Public(),
	})
}
