package models

import "time"

// Bookmark is a user-owned reference to an external movie record.
// Items are keyed by (user_id, movie_id).
type Bookmark struct {
	UserID       string    `json:"-" dynamodbav:"user_id"`             // Partition Key
	MovieID      string    `json:"movieId" dynamodbav:"movie_id"`      // Sort Key
	Title        string    `json:"title" dynamodbav:"title"`
	Poster       string    `json:"poster" dynamodbav:"poster"`
	Year         string    `json:"year" dynamodbav:"year"`
	IMDBRating   string    `json:"imdbRating" dynamodbav:"imdb_rating"`
	Genre        string    `json:"genre" dynamodbav:"genre"`
	BookmarkedAt time.Time `json:"bookmarkedAt" dynamodbav:"bookmarked_at"`
}

// AddBookmarkRequest represents add-bookmark payload
type AddBookmarkRequest struct {
	MovieID    string `json:"movieId" validate:"required"`
	Title      string `json:"title" validate:"required"`
	Poster     string `json:"poster"`
	Year       string `json:"year"`
	IMDBRating string `json:"imdbRating"`
	Genre      string `json:"genre"`
}

// BookmarksResponse lists a user's bookmarks
type BookmarksResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Bookmarks []Bookmark `json:"bookmarks"`
}

// BookmarkResponse wraps a single stored bookmark
type BookmarkResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Bookmark Bookmark `json:"bookmark"`
}

// CheckBookmarkResponse reports bookmark presence
type CheckBookmarkResponse struct {
	Success      bool `json:"success"`
	IsBookmarked bool `json:"isBookmarked"`
}
