package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"vocabremind/internal/reminder"
)

// memStore keeps records in a map. fileStore builds on it.
type memStore struct {
	mu     sync.RWMutex
	rows   map[string]reminder.Reminder
	closed bool
}

func newMemory() *memStore {
	return &memStore{rows: map[string]reminder.Reminder{}}
}

func (s *memStore) ListActive(ctx context.Context) ([]reminder.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]reminder.Reminder, 0, len(s.rows))
	for _, r := range s.rows {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *memStore) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Reminder{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return reminder.Reminder{}, ErrClosed
	}
	r, ok := s.rows[id]
	if !ok {
		return reminder.Reminder{}, notFound(id)
	}
	return r, nil
}

func (s *memStore) FindActiveByUser(ctx context.Context, userID string) (reminder.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Reminder{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return reminder.Reminder{}, ErrClosed
	}
	var (
		best  reminder.Reminder
		found bool
	)
	for _, r := range s.rows {
		if !r.IsActive || r.UserID != userID {
			continue
		}
		if !found || r.UpdatedAt.After(best.UpdatedAt) {
			best, found = r, true
		}
	}
	if !found {
		return reminder.Reminder{}, fmt.Errorf("user %s: %w", userID, reminder.ErrNotFound)
	}
	return best, nil
}

func (s *memStore) Create(ctx context.Context, r reminder.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(r)
}

func (s *memStore) createLocked(r reminder.Reminder) error {
	if s.closed {
		return ErrClosed
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("storage: reminder id is empty")
	}
	if _, ok := s.rows[r.ID]; ok {
		return fmt.Errorf("reminder %s exists: %w", r.ID, ErrConflict)
	}
	if r.IsActive && s.activeOtherLocked(r.UserID, r.ID) {
		return ErrConflict
	}
	s.rows[r.ID] = r
	return nil
}

func (s *memStore) Update(ctx context.Context, r reminder.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(r)
}

func (s *memStore) updateLocked(r reminder.Reminder) error {
	if s.closed {
		return ErrClosed
	}
	old, ok := s.rows[r.ID]
	if !ok {
		return notFound(r.ID)
	}
	if r.IsActive && s.activeOtherLocked(r.UserID, r.ID) {
		return ErrConflict
	}
	r.CreatedAt = old.CreatedAt
	s.rows[r.ID] = r
	return nil
}

func (s *memStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.setActiveLocked(id, active, at)
	return err
}

func (s *memStore) setActiveLocked(id string, active bool, at time.Time) (reminder.Reminder, error) {
	if s.closed {
		return reminder.Reminder{}, ErrClosed
	}
	r, ok := s.rows[id]
	if !ok {
		return reminder.Reminder{}, notFound(id)
	}
	if active && !r.IsActive && s.activeOtherLocked(r.UserID, id) {
		return reminder.Reminder{}, ErrConflict
	}
	r.IsActive = active
	r.UpdatedAt = at
	s.rows[id] = r
	return r, nil
}

func (s *memStore) activeOtherLocked(userID, id string) bool {
	for _, o := range s.rows {
		if o.IsActive && o.UserID == userID && o.ID != id {
			return true
		}
	}
	return false
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("reminder %s: %w", id, reminder.ErrNotFound)
}

func sortByCreated(rs []reminder.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
