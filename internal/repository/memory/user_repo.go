package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"campusattend/internal/domain"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserRepository returns an empty in-memory user store.
func NewUserRepository() domain.UserRepository {
	return &userRepository{users: make(map[string]*domain.User)}
}

func (r *userRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := r.users[u.ID]; exists {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrAlreadyExists)
	}
	c := *u
	r.users[u.ID] = &c
	return nil
}

func (r *userRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

// ListByIDs returns the users that exist, in the order of ids. Unknown ids are skipped.
func (r *userRepository) ListByIDs(_ context.Context, ids []string) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}
