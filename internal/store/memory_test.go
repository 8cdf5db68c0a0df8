package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmark/bookmarks-api/internal/models"
)

func newTestUser(id, email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		UserID:       id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.Create(ctx, newTestUser("u1", "a@x.io")))

	byID, err := m.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a@x.io", byID.Email)

	byEmail, err := m.GetByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u1", byEmail.UserID)

	missing, err := m.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = m.GetByEmail(ctx, "nope@x.io")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_CreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.Create(ctx, newTestUser("u1", "a@x.io")))
	assert.ErrorIs(t, m.Create(ctx, newTestUser("u2", "a@x.io")), ErrDuplicateEmail)
}

func TestMemoryStore_ConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.Create(ctx, newTestUser(fmt.Sprintf("u%d", i), "race@x.io"))
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Create(ctx, newTestUser("u1", "a@x.io")))
	require.NoError(t, m.Create(ctx, newTestUser("u2", "b@x.io")))

	t.Run("email taken by another user", func(t *testing.T) {
		email := "b@x.io"
		_, err := m.Update(ctx, "u1", UserUpdate{Email: &email})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("own email is not a conflict", func(t *testing.T) {
		email, name := "a@x.io", "Renamed"
		user, err := m.Update(ctx, "u1", UserUpdate{Name: &name, Email: &email})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", user.Name)
	})

	t.Run("email change releases the old address", func(t *testing.T) {
		email := "c@x.io"
		user, err := m.Update(ctx, "u1", UserUpdate{Email: &email})
		require.NoError(t, err)
		assert.Equal(t, "c@x.io", user.Email)

		old, err := m.GetByEmail(ctx, "a@x.io")
		require.NoError(t, err)
		assert.Nil(t, old)

		require.NoError(t, m.Create(ctx, newTestUser("u3", "a@x.io")))
	})

	t.Run("unknown user", func(t *testing.T) {
		name := "x"
		_, err := m.Update(ctx, "ghost", UserUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestMemoryStore_Bookmarks(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Create(ctx, newTestUser("u1", "a@x.io")))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"tt1", "tt2", "tt3"} {
		require.NoError(t, m.Add(ctx, &models.Bookmark{
			UserID:       "u1",
			MovieID:      id,
			Title:        "Movie " + id,
			BookmarkedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	err := m.Add(ctx, &models.Bookmark{UserID: "u1", MovieID: "tt2", Title: "dup"})
	assert.ErrorIs(t, err, ErrBookmarkExists)

	list, err := m.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "tt3", list[0].MovieID)
	assert.Equal(t, "tt1", list[2].MovieID)

	exists, err := m.Exists(ctx, "u1", "tt2")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, m.Remove(ctx, "u1", "tt2"))
	assert.ErrorIs(t, m.Remove(ctx, "u1", "tt2"), ErrBookmarkNotFound)

	exists, err = m.Exists(ctx, "u1", "tt2")
	require.NoError(t, err)
	assert.False(t, exists)

	list, err = m.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// Returned slice is a copy
	list[0].Title = "mutated"
	again, err := m.List(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].Title)
}

func TestMemoryStore_AddForMissingUser(t *testing.T) {
	m := NewMemoryStore()
	err := m.Add(context.Background(), &models.Bookmark{UserID: "ghost", MovieID: "tt1"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Create(ctx, newTestUser("u1", "a@x.io")))
	require.NoError(t, m.Add(ctx, &models.Bookmark{UserID: "u1", MovieID: "tt1"}))

	deleted, err := m.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err := m.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	user, err := m.GetByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Nil(t, user)

	deleted, err = m.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
