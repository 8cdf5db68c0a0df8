// Package services holds the account and bookmark workflows. Handlers call in
// with the gate-resolved user id; every failure leaves as a *errors.AppError.
package services

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/auth"
	"github.com/reelmark/bookmarks-api/internal/metrics"
	"github.com/reelmark/bookmarks-api/internal/models"
	"github.com/reelmark/bookmarks-api/internal/store"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

// MinPasswordLength applies to password changes
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthResult is returned by signup and login
type AuthResult struct {
	Token string
	User  *models.User
}

// AccountService implements signup, login and profile management
type AccountService struct {
	creds  *store.CredentialStore
	tokens *auth.TokenService
	logger *logrus.Logger
}

// NewAccountService creates an account service
func NewAccountService(creds *store.CredentialStore, tokens *auth.TokenService, logger *logrus.Logger) *AccountService {
	return &AccountService{
		creds:  creds,
		tokens: tokens,
		logger: logger,
	}
}

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates the user and issues its first token
func (s *AccountService) Signup(ctx context.Context, req models.SignupRequest) (result *AuthResult, err error) {
	defer func() { recordAuth("signup", err) }()

	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, apperrors.Validation("All fields are required")
	}

	user, err := s.creds.Create(ctx, name, email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return nil, apperrors.Conflict("Email already in use")
		case errors.Is(err, auth.ErrPasswordTooLong):
			return nil, apperrors.Validation("Password must not exceed 72 bytes")
		case errors.Is(err, store.ErrInvalidUser):
			return nil, apperrors.Validation("All fields are required")
		}
		return nil, apperrors.Internal("Server error during signup", err)
	}

	token, err := s.tokens.Issue(user.UserID)
	if err != nil {
		return nil, apperrors.Internal("Server error during signup", err)
	}

	s.logger.WithField("user_id", user.UserID).Info("User signed up")
	return &AuthResult{Token: token, User: user}, nil
}

// Login verifies credentials. Unknown email and wrong password fail alike.
func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (result *AuthResult, err error) {
	defer func() { recordAuth("login", err) }()

	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperrors.Validation("Email and password are required")
	}

	user, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Internal("Server error during login", err)
	}
	if user == nil || !s.creds.ComparePassword(user, req.Password) {
		return nil, invalidLogin()
	}

	token, err := s.tokens.Issue(user.UserID)
	if err != nil {
		return nil, apperrors.Internal("Server error during login", err)
	}

	return &AuthResult{Token: token, User: user}, nil
}

func invalidLogin() *apperrors.AppError {
	return apperrors.NewAppError(apperrors.CodeInvalidCredentials, "Invalid credentials", nil).
		WithStatus(http.StatusUnauthorized)
}

// GetProfile returns the current user record
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Server error while fetching profile", err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User not found")
	}
	return user, nil
}

// UpdateProfile changes name and email. Re-submitting one's own email is not
// a conflict.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (user *models.User, err error) {
	defer func() { recordAuth("update_profile", err) }()

	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	if name == "" || email == "" {
		return nil, apperrors.Validation("Name and email are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, apperrors.Validation("Invalid email format")
	}

	owner, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Internal("Server error while updating profile", err)
	}
	if owner != nil && owner.UserID != userID {
		return nil, apperrors.Conflict("Email is already in use")
	}

	user, err = s.creds.Update(ctx, userID, store.CredentialUpdate{Name: &name, Email: &email})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			return nil, apperrors.NotFound("User not found")
		case errors.Is(err, store.ErrDuplicateEmail):
			// Lost a race with another writer claiming the address
			return nil, apperrors.Conflict("Email is already in use")
		case errors.Is(err, store.ErrInvalidUser):
			return nil, apperrors.Validation("Name and email are required")
		}
		return nil, apperrors.Internal("Server error while updating profile", err)
	}

	return user, nil
}

// ChangePassword re-hashes the password after confirming the current one.
// Existing tokens stay valid.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) (err error) {
	defer func() { recordAuth("change_password", err) }()

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.Validation("Current password and new password are required")
	}
	if utf8.RuneCountInString(req.NewPassword) < MinPasswordLength {
		return apperrors.Validation("New password must be at least 6 characters long")
	}

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return apperrors.Internal("Server error while changing password", err)
	}
	if user == nil {
		return apperrors.NotFound("User not found")
	}

	if !s.creds.ComparePassword(user, req.CurrentPassword) {
		return apperrors.NewAppError(apperrors.CodeInvalidCredentials, "Current password is incorrect", nil)
	}
	if s.creds.ComparePassword(user, req.NewPassword) {
		return apperrors.NewAppError(apperrors.CodeNoOpChange, "New password must be different from current password", nil)
	}

	newPassword := req.NewPassword
	if _, err := s.creds.Update(ctx, userID, store.CredentialUpdate{Password: &newPassword}); err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			return apperrors.NotFound("User not found")
		case errors.Is(err, auth.ErrPasswordTooLong):
			return apperrors.Validation("New password must not exceed 72 bytes")
		}
		return apperrors.Internal("Server error while changing password", err)
	}

	s.logger.WithField("user_id", userID).Info("Password changed")
	return nil
}

// DeleteAccount removes the user and its bookmarks after password confirmation
func (s *AccountService) DeleteAccount(ctx context.Context, userID string, req models.DeleteAccountRequest) (err error) {
	defer func() { recordAuth("delete_account", err) }()

	if req.Password == "" {
		return apperrors.Validation("Password is required to delete account")
	}

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return apperrors.Internal("Server error while deleting account", err)
	}
	if user == nil {
		return apperrors.NotFound("User not found")
	}

	if !s.creds.ComparePassword(user, req.Password) {
		return apperrors.NewAppError(apperrors.CodeInvalidCredentials, "Incorrect password", nil)
	}

	deleted, err := s.creds.Delete(ctx, userID)
	if err != nil {
		return apperrors.Internal("Server error while deleting account", err)
	}
	if !deleted {
		return apperrors.NotFound("User not found")
	}

	s.logger.WithField("user_id", userID).Info("Account deleted")
	return nil
}

func recordAuth(operation string, err error) {
	metrics.RecordAuthOperation(operation, outcome(err))
}

// outcome classifies an error for operation metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.HasCode(err, apperrors.CodeInternalError):
		return "error"
	default:
		return "rejected"
	}
}
