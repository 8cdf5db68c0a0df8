package store

import (
	"context"
	"sync"
	"time"

	"github.com/reelmark/bookmarks-api/internal/models"
)

// MemoryStore keeps users and bookmarks in process memory. It implements both
// repositories so that account deletion can cascade under one lock.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	emails    map[string]string            // email -> user id
	bookmarks map[string][]models.Bookmark // user id -> newest first
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]models.User),
		emails:    make(map[string]string),
		bookmarks: make(map[string][]models.Bookmark),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.emails[user.Email]; taken {
		return ErrDuplicateEmail
	}
	if _, exists := m.users[user.UserID]; exists {
		return ErrInvalidUser
	}

	m.users[user.UserID] = *user
	m.emails[user.Email] = user.UserID
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.emails[email]
	if !ok {
		return nil, nil
	}
	user := m.users[userID]
	return &user, nil
}

func (m *MemoryStore) Update(ctx context.Context, userID string, update UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	if update.Email != nil && *update.Email != user.Email {
		if owner, taken := m.emails[*update.Email]; taken && owner != userID {
			return nil, ErrDuplicateEmail
		}
		delete(m.emails, user.Email)
		m.emails[*update.Email] = userID
		user.Email = *update.Email
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	user.UpdatedAt = m.now()

	m.users[userID] = user
	return &user, nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return false, nil
	}

	delete(m.users, userID)
	delete(m.emails, user.Email)
	delete(m.bookmarks, userID)
	return true, nil
}

func (m *MemoryStore) Add(ctx context.Context, b *models.Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[b.UserID]; !ok {
		return ErrUserNotFound
	}

	list := m.bookmarks[b.UserID]
	for _, existing := range list {
		if existing.MovieID == b.MovieID {
			return ErrBookmarkExists
		}
	}

	updated := make([]models.Bookmark, 0, len(list)+1)
	updated = append(updated, *b)
	updated = append(updated, list...)
	m.bookmarks[b.UserID] = updated
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, userID, movieID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.bookmarks[userID]
	for i, existing := range list {
		if existing.MovieID == movieID {
			updated := make([]models.Bookmark, 0, len(list)-1)
			updated = append(updated, list[:i]...)
			updated = append(updated, list[i+1:]...)
			m.bookmarks[userID] = updated
			return nil
		}
	}
	return ErrBookmarkNotFound
}

func (m *MemoryStore) Exists(ctx context.Context, userID, movieID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, existing := range m.bookmarks[userID] {
		if existing.MovieID == movieID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) List(ctx context.Context, userID string) ([]models.Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.bookmarks[userID]
	out := make([]models.Bookmark, len(list))
	copy(out, list)
	return out, nil
}
