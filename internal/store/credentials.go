package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelmark/bookmarks-api/internal/auth"
	"github.com/reelmark/bookmarks-api/internal/models"
)

// CredentialUpdate is the caller-facing update; Password is raw and is hashed
// on write.
type CredentialUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// CredentialStore owns user records and enforces hashing-on-write
type CredentialStore struct {
	repo   UserRepository
	hasher auth.PasswordHasher
	now    func() time.Time
}

// NewCredentialStore wraps a user repository with password hashing
func NewCredentialStore(repo UserRepository, hasher auth.PasswordHasher) *CredentialStore {
	return &CredentialStore{
		repo:   repo,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create hashes rawPassword and persists a new user
func (s *CredentialStore) Create(ctx context.Context, name, email, rawPassword string) (*models.User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || rawPassword == "" {
		return nil, ErrInvalidUser
	}

	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		UserID:       uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail returns nil when no user owns email
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// FindByID returns nil when the user does not exist
func (s *CredentialStore) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.GetByID(ctx, userID)
}

// Update applies fields to the user. The password is hashed only when the
// update carries one.
func (s *CredentialStore) Update(ctx context.Context, userID string, fields CredentialUpdate) (*models.User, error) {
	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if fields.Email != nil && strings.TrimSpace(*fields.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if fields.Password != nil && *fields.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidUser)
	}

	update := UserUpdate{
		Name:  fields.Name,
		Email: fields.Email,
	}
	if fields.Password != nil {
		hash, err := s.hasher.Hash(*fields.Password)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}

	return s.repo.Update(ctx, userID, update)
}

// Delete removes the user and its bookmarks
func (s *CredentialStore) Delete(ctx context.Context, userID string) (bool, error) {
	return s.repo.Delete(ctx, userID)
}

// ComparePassword reports whether raw matches the user's stored hash
func (s *CredentialStore) ComparePassword(user *models.User, raw string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return s.hasher.Compare(user.PasswordHash, raw)
}
