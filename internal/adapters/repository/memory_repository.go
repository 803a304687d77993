package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/google/uuid"
)

var _ domain.SynchronizationRepository = (*InMemorySynchronizationRepository)(nil)

type InMemorySynchronizationRepository struct {
	store map[string]domain.Synchronization

	mu sync.RWMutex
}

func NewInMemorySynchronizationRepository() *InMemorySynchronizationRepository {
	return &InMemorySynchronizationRepository{
		store: make(map[string]domain.Synchronization),
	}
}

func (r *InMemorySynchronizationRepository) NextID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *InMemorySynchronizationRepository) Store(ctx context.Context, s *domain.Synchronization) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.store[s.ID] = *s
	return nil
}

func (r *InMemorySynchronizationRepository) Fetch(ctx context.Context, id string) (*domain.Synchronization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.store[id]
	if !ok {
		return nil, domain.ErrSynchronizationNotFound
	}
	return &s, nil
}

func (r *InMemorySynchronizationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[id]; !ok {
		return domain.ErrSynchronizationNotFound
	}

	delete(r.store, id)
	return nil
}

func (r *InMemorySynchronizationRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Synchronization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*domain.Synchronization
	for _, s := range r.store {
		if s.UserID == userID {
			copied := s
			list = append(list, &copied)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	return list, nil
}

func (r *InMemorySynchronizationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Synchronization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*domain.Synchronization
	for _, s := range r.store {
		if s.ShouldAutoSync(now) {
			copied := s
			list = append(list, &copied)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].RunAt.Before(list[j].RunAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
