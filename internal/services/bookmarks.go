package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/metrics"
	"github.com/reelmark/bookmarks-api/internal/models"
	"github.com/reelmark/bookmarks-api/internal/store"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

// BookmarkService manages a user's saved movies
type BookmarkService struct {
	repo   store.BookmarkRepository
	logger *logrus.Logger
	now    func() time.Time
}

// NewBookmarkService creates a bookmark service
func NewBookmarkService(repo store.BookmarkRepository, logger *logrus.Logger) *BookmarkService {
	return &BookmarkService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns bookmarks newest first
func (s *BookmarkService) List(ctx context.Context, userID string) (bookmarks []models.Bookmark, err error) {
	defer func() { recordBookmark("list", err) }()

	bookmarks, err = s.repo.List(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Server error while fetching bookmarks", err)
	}
	if bookmarks == nil {
		bookmarks = []models.Bookmark{}
	}
	return bookmarks, nil
}

// Add stores a new bookmark at the head of the list
func (s *BookmarkService) Add(ctx context.Context, userID string, req models.AddBookmarkRequest) (bookmark *models.Bookmark, err error) {
	defer func() { recordBookmark("add", err) }()

	movieID := strings.TrimSpace(req.MovieID)
	title := strings.TrimSpace(req.Title)
	if movieID == "" || title == "" {
		return nil, apperrors.Validation("Movie ID and title are required")
	}

	bookmark = &models.Bookmark{
		UserID:       userID,
		MovieID:      movieID,
		Title:        title,
		Poster:       req.Poster,
		Year:         req.Year,
		IMDBRating:   req.IMDBRating,
		Genre:        req.Genre,
		BookmarkedAt: s.now(),
	}

	if err := s.repo.Add(ctx, bookmark); err != nil {
		switch {
		case errors.Is(err, store.ErrBookmarkExists):
			return nil, apperrors.NewAppError(apperrors.CodeAlreadyBookmarked, "Movie is already bookmarked", nil)
		case errors.Is(err, store.ErrUserNotFound):
			return nil, apperrors.NotFound("User not found")
		}
		return nil, apperrors.Internal("Server error while adding bookmark", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"movie_id": movieID,
	}).Debug("Bookmark added")
	return bookmark, nil
}

// Remove deletes exactly one bookmark
func (s *BookmarkService) Remove(ctx context.Context, userID, movieID string) (err error) {
	defer func() { recordBookmark("remove", err) }()

	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return apperrors.Validation("Movie ID is required")
	}

	if err := s.repo.Remove(ctx, userID, movieID); err != nil {
		if errors.Is(err, store.ErrBookmarkNotFound) {
			return apperrors.NotFound("Bookmark not found")
		}
		return apperrors.Internal("Server error while removing bookmark", err)
	}
	return nil
}

// Check reports presence; absence is not an error
func (s *BookmarkService) Check(ctx context.Context, userID, movieID string) (exists bool, err error) {
	defer func() { recordBookmark("check", err) }()

	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return false, apperrors.Validation("Movie ID is required")
	}

	exists, err = s.repo.Exists(ctx, userID, movieID)
	if err != nil {
		return false, apperrors.Internal("Server error while checking bookmark", err)
	}
	return exists, nil
}

func recordBookmark(operation string, err error) {
	metrics.RecordBookmarkOperation(operation, outcome(err))
}
