package domain

import (
	"context"
	"errors"
	"time"
)

var ErrSynchronizationNotFound = errors.New("synchronization not found")

type SynchronizationRepository interface {
	// NextID allocates an identifier for a new synchronization.
	NextID(ctx context.Context) (string, error)

	// Store persists the full attribute set. Fails with ErrInvalidSynchronization
	// when required attributes are missing.
	Store(ctx context.Context, sync *Synchronization) error

	Fetch(ctx context.Context, id string) (*Synchronization, error)

	Delete(ctx context.Context, id string) error

	ListByUserID(ctx context.Context, userID string) ([]*Synchronization, error)

	// ListDue returns synchronizations in success state whose run_at has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Synchronization, error)
}
