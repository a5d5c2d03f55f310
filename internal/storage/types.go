package storage

import (
	"context"
	"errors"
	"time"

	"vocabremind/internal/reminder"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrConflict is returned when a write would give a user a second
	// active reminder.
	ErrConflict = errors.New("user already has an active reminder")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local, lost on exit (default)
//   - "file": JSON snapshot + journal next to Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN, schema managed by migrations
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means pgxpool default
}

// Store persists reminder records. Lookups of a missing id return an error
// wrapping reminder.ErrNotFound.
type Store interface {
	ListActive(ctx context.Context) ([]reminder.Reminder, error)
	Get(ctx context.Context, id string) (reminder.Reminder, error)
	FindActiveByUser(ctx context.Context, userID string) (reminder.Reminder, error)
	Create(ctx context.Context, r reminder.Reminder) error
	Update(ctx context.Context, r reminder.Reminder) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	Close() error
}
