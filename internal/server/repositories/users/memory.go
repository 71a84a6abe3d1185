package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It backs the server when
// no database DSN is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byLogin map[string]string
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    map[string]*models.User{},
		byLogin: map[string]string{},
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byLogin[user.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	user.ID = uuid.NewString()
	user.CreatedAt = r.now().UTC()

	cp := *user
	r.byID[user.ID] = &cp
	r.byLogin[user.UserName] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byLogin[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

// Lock only checks that the user exists; the memory manager serializes
// transactions itself.
func (r *MemoryRepository) Lock(_ context.Context, userID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byID[userID]; !ok {
		return common.ErrorNotFound
	}
	return nil
}

func (r *MemoryRepository) SetLastSyncedAt(_ context.Context, userID string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.LastSyncedAt = &t
	return nil
}

func (r *MemoryRepository) GetLastSyncedAt(_ context.Context, userID string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if u.LastSyncedAt == nil {
		return nil, nil
	}
	t := *u.LastSyncedAt
	return &t, nil
}
