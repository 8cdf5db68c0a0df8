package models

import "time"

// User represents an account in the system
type User struct {
	UserID       string    `json:"id" dynamodbav:"user_id"`      // Primary Key
	Name         string    `json:"name" dynamodbav:"name"`       // Display name
	Email        string    `json:"email" dynamodbav:"email"`     // Unique, lower-cased
	PasswordHash string    `json:"-" dynamodbav:"password_hash"` // bcrypt hash (never in JSON)
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// PublicUser is the profile shape returned to clients
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips everything but the public profile fields
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// SignupRequest represents signup request payload
type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest represents profile update payload
type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// ChangePasswordRequest represents password change payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// DeleteAccountRequest carries the password confirmation for account deletion
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents signup/login response
type AuthResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    PublicUser `json:"user"`
}

// ProfileResponse wraps a public profile
type ProfileResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	User    PublicUser `json:"user"`
}

// MessageResponse is a bare success envelope
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
