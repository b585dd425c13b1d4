package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
)

type UserStore struct {
	mu        sync.RWMutex
	users     map[int64]*domain.User
	nameIndex map[string]int64
	nextID    int64
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:     make(map[int64]*domain.User),
		nameIndex: make(map[string]int64),
	}
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.nameIndex[u.Username]; taken {
		return nil, fmt.Errorf("%w: user %q", domain.ErrAlreadyExists, u.Username)
	}

	s.nextID++
	cp := *u
	cp.ID = s.nextID
	cp.CreatedAt = time.Now()
	s.users[cp.ID] = &cp
	s.nameIndex[cp.Username] = cp.ID

	out := cp
	return &out, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.nameIndex[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *UserStore) UpdateInfo(ctx context.Context, id int64, firstName, lastName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	u.FirstName = firstName
	u.LastName = lastName
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	delete(s.nameIndex, u.Username)
	delete(s.users, id)
	return nil
}
