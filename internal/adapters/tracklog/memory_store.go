package tracklog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var _ domain.LogStore = (*MemoryLogStore)(nil)

type memoryLog struct {
	log       domain.Log
	expiresAt time.Time
}

// MemoryLogStore honours expirations lazily on read.
type MemoryLogStore struct {
	mu   sync.RWMutex
	logs map[string]*memoryLog
	now  func() time.Time
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{
		logs: make(map[string]*memoryLog),
		now:  time.Now,
	}
}

func (s *MemoryLogStore) Create(ctx context.Context, prefix string, expiration time.Duration) (*domain.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := &memoryLog{
		log: domain.Log{
			ID:         uuid.NewString(),
			Prefix:     prefix,
			Expiration: expiration,
			CreatedAt:  now,
		},
		expiresAt: now.Add(expiration),
	}
	s.logs[entry.log.ID] = entry

	copied := entry.log
	return &copied, nil
}

func (s *MemoryLogStore) Fetch(ctx context.Context, id string) (*domain.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.logs[id]
	if !ok || s.expired(entry) {
		return nil, domain.ErrLogNotFound
	}

	copied := entry.log
	copied.Entries = append([]string(nil), entry.log.Entries...)
	return &copied, nil
}

func (s *MemoryLogStore) Append(ctx context.Context, log *domain.Log, lines ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.logs[log.ID]
	if !ok || s.expired(entry) {
		return domain.ErrLogNotFound
	}
	entry.log.Entries = append(entry.log.Entries, lines...)
	if entry.log.Expiration > 0 {
		entry.expiresAt = s.now().Add(entry.log.Expiration)
	}
	return nil
}

func (s *MemoryLogStore) expired(entry *memoryLog) bool {
	return entry.log.Expiration > 0 && !s.now().Before(entry.expiresAt)
}
