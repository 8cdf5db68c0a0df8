package routes

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/middleware"
	"github.com/reelmark/bookmarks-api/internal/models"
	"github.com/reelmark/bookmarks-api/internal/services"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

// BookmarkHandler handles the caller's bookmark collection
type BookmarkHandler struct {
	bookmarks *services.BookmarkService
	logger    *logrus.Logger
}

// NewBookmarkHandler creates a new bookmark handler
func NewBookmarkHandler(bookmarks *services.BookmarkService, logger *logrus.Logger) *BookmarkHandler {
	return &BookmarkHandler{
		bookmarks: bookmarks,
		logger:    logger,
	}
}

// List returns the caller's bookmarks, newest first
// @Summary List bookmarks
// @Tags Bookmarks
// @Produce json
// @Security Bearer
// @Success 200 {object} models.BookmarksResponse
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Router /bookmarks [get]
func (h *BookmarkHandler) List(c *fiber.Ctx) error {
	bookmarks, err := h.bookmarks.List(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return err
	}

	return c.JSON(models.BookmarksResponse{
		Success:   true,
		Bookmarks: bookmarks,
	})
}

// Add bookmarks a movie
// @Summary Add bookmark
// @Tags Bookmarks
// @Accept json
// @Produce json
// @Security Bearer
// @Param Idempotency-Key header string false "UUID idempotency key"
// @Param request body models.AddBookmarkRequest true "Movie snapshot"
// @Success 201 {object} models.BookmarkResponse
// @Failure 400 {object} errors.ErrorResponse "Missing fields or already bookmarked"
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Failure 409 {object} errors.ErrorResponse "Idempotency key reused with a different body"
// @Router /bookmarks [post]
func (h *BookmarkHandler) Add(c *fiber.Ctx) error {
	var req models.AddBookmarkRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	bookmark, err := h.bookmarks.Add(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(models.BookmarkResponse{
		Success:  true,
		Message:  "Movie bookmarked successfully",
		Bookmark: *bookmark,
	})
}

// Remove deletes the bookmark for a movie
// @Summary Remove bookmark
// @Tags Bookmarks
// @Produce json
// @Security Bearer
// @Param movieId path string true "Movie ID"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} errors.ErrorResponse "Malformed movie ID"
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Failure 404 {object} errors.ErrorResponse "Bookmark not found"
// @Router /bookmarks/{movieId} [delete]
func (h *BookmarkHandler) Remove(c *fiber.Ctx) error {
	movieID, err := movieIDParam(c)
	if err != nil {
		return err
	}

	if err := h.bookmarks.Remove(c.UserContext(), middleware.GetUserID(c), movieID); err != nil {
		return err
	}

	return c.JSON(models.MessageResponse{
		Success: true,
		Message: "Bookmark removed successfully",
	})
}

// Check reports whether a movie is bookmarked
// @Summary Check bookmark
// @Tags Bookmarks
// @Produce json
// @Security Bearer
// @Param movieId path string true "Movie ID"
// @Success 200 {object} models.CheckBookmarkResponse
// @Failure 400 {object} errors.ErrorResponse "Malformed movie ID"
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Router /bookmarks/check/{movieId} [get]
func (h *BookmarkHandler) Check(c *fiber.Ctx) error {
	movieID, err := movieIDParam(c)
	if err != nil {
		return err
	}

	exists, err := h.bookmarks.Check(c.UserContext(), middleware.GetUserID(c), movieID)
	if err != nil {
		return err
	}

	return c.JSON(models.CheckBookmarkResponse{
		Success:      true,
		IsBookmarked: exists,
	})
}

// movieIDParam decodes the movieId path segment. Fiber hands it over still
// percent-encoded, while Add stores the ID from the JSON body verbatim.
func movieIDParam(c *fiber.Ctx) (string, error) {
	movieID, err := url.PathUnescape(c.Params("movieId"))
	if err != nil {
		return "", apperrors.NewAppError(apperrors.CodeBadRequest, "Malformed movie ID in path", err)
	}
	return movieID, nil
}
