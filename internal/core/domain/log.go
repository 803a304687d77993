package domain

import (
	"context"
	"errors"
	"time"
)

var ErrLogNotFound = errors.New("log not found")

// Log is the append-only trace of one synchronization attempt.
type Log struct {
	ID         string        `json:"id"`
	Prefix     string        `json:"prefix"`
	Expiration time.Duration `json:"-"`
	Entries    []string      `json:"entries"`
	CreatedAt  time.Time     `json:"created_at"`
}

type LogStore interface {
	// Create allocates a new empty log under the given key namespace.
	Create(ctx context.Context, prefix string, expiration time.Duration) (*Log, error)

	// Fetch loads a log and its entries. Returns ErrLogNotFound once expired.
	Fetch(ctx context.Context, id string) (*Log, error)

	// Append adds lines at the end of the log and refreshes its retention.
	Append(ctx context.Context, log *Log, lines ...string) error
}

// RunLog binds a log to its store so collaborators can only append to it.
type RunLog struct {
	store LogStore
	log   *Log
}

func NewRunLog(store LogStore, log *Log) *RunLog {
	return &RunLog{store: store, log: log}
}

func (l *RunLog) ID() string {
	if l == nil || l.log == nil {
		return ""
	}
	return l.log.ID
}

func (l *RunLog) Append(ctx context.Context, lines ...string) error {
	if l == nil || l.log == nil || len(lines) == 0 {
		return nil
	}
	if err := l.store.Append(ctx, l.log, lines...); err != nil {
		return err
	}
	l.log.Entries = append(l.log.Entries, lines...)
	return nil
}

func (l *RunLog) Entries() []string {
	if l == nil || l.log == nil {
		return nil
	}
	return l.log.Entries
}
