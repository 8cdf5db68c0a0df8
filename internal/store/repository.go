// Package store persists users and their bookmarks. Users live in one
// document collection guarded by an email uniqueness constraint; bookmarks
// are independent items keyed by (user id, movie id) so that writers on
// different movies never contend.
package store

import (
	"context"
	"errors"

	"github.com/reelmark/bookmarks-api/internal/models"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateEmail   = errors.New("email already in use")
	ErrInvalidUser      = errors.New("invalid user")
	ErrBookmarkNotFound = errors.New("bookmark not found")
	ErrBookmarkExists   = errors.New("movie is already bookmarked")
)

// UserUpdate lists the fields to change; nil fields are left untouched.
// PasswordHash is set by CredentialStore, never by callers.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// UserRepository is the persistence contract for user records. Emails are
// compared exactly; normalization happens above this layer.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, userID string, update UserUpdate) (*models.User, error)
	// Delete removes the user and cascades its bookmarks. It reports false
	// when no such user existed.
	Delete(ctx context.Context, userID string) (bool, error)
}

// BookmarkRepository is the persistence contract for bookmarks
type BookmarkRepository interface {
	// Add stores b unless a bookmark for the same movie exists
	// (ErrBookmarkExists) or the owner is gone (ErrUserNotFound).
	Add(ctx context.Context, b *models.Bookmark) error
	// Remove fails with ErrBookmarkNotFound when nothing was removed.
	Remove(ctx context.Context, userID, movieID string) error
	Exists(ctx context.Context, userID, movieID string) (bool, error)
	// List returns bookmarks newest first.
	List(ctx context.Context, userID string) ([]models.Bookmark, error)
}

// Pinger reports backend reachability
type Pinger interface {
	Ping(ctx context.Context) error
}
