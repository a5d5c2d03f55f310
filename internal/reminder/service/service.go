// Package service keeps reminder records and their triggers in lockstep.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vocabremind/internal/reminder"
	"vocabremind/internal/storage"
	"vocabremind/internal/task/scheduler"
	"vocabremind/internal/vocabulary"
	logx "vocabremind/pkg/logx"
)

// Scheduler is the trigger registry as seen by the service.
type Scheduler interface {
	Schedule(r reminder.Reminder, c reminder.Content) (*scheduler.Trigger, error)
	Cancel(id string) bool
}

type Service struct {
	// mu serializes writes so a user's lookup-then-write is atomic within
	// the process.
	mu sync.Mutex

	store storage.Store
	sched Scheduler
	words []vocabulary.Entry
	log   logx.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a service. words may be empty, in which case firings deliver the
// reminder's own title and body.
func New(store storage.Store, sched Scheduler, words []vocabulary.Entry, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, sched: sched, words: words, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upsert creates a reminder or, when the user already has an active one,
// replaces it under the same id. created reports which happened.
func (s *Service) Upsert(ctx context.Context, in reminder.Input) (r reminder.Reminder, created bool, err error) {
	r, err = in.Build(s.now(), scheduler.ValidateFrequency)
	if err != nil {
		return reminder.Reminder{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.FindActiveByUser(ctx, r.UserID)
	switch {
	case err == nil:
		// Schedule replaces the live trigger by id, so a failed update
		// leaves the previous one running.
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		if err := s.store.Update(ctx, r); err != nil {
			return reminder.Reminder{}, false, fmt.Errorf("update reminder %s: %w", r.ID, err)
		}
	case errors.Is(err, reminder.ErrNotFound):
		if err := s.store.Create(ctx, r); err != nil {
			return reminder.Reminder{}, false, fmt.Errorf("create reminder: %w", err)
		}
		created = true
	default:
		return reminder.Reminder{}, false, fmt.Errorf("find reminder for user %s: %w", r.UserID, err)
	}

	if !r.IsActive {
		s.sched.Cancel(r.ID)
		return r, created, nil
	}
	if err := s.schedule(r); err != nil {
		// The record stays active; Restore retries it on the next start.
		return reminder.Reminder{}, created, err
	}
	return r, created, nil
}

// ActiveForUser returns the user's active reminder or reminder.ErrNotFound.
func (s *Service) ActiveForUser(ctx context.Context, userID string) (reminder.Reminder, error) {
	return s.store.FindActiveByUser(ctx, userID)
}

// Cancel stops the trigger for id and marks the record inactive. It fails
// with reminder.ErrNotFound when no record exists and with
// reminder.ErrNoActiveJob when the record had no live trigger.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if !s.sched.Cancel(id) {
		return fmt.Errorf("reminder %s: %w", id, reminder.ErrNoActiveJob)
	}
	if err := s.store.SetActive(ctx, id, false, s.now().UTC()); err != nil {
		return fmt.Errorf("deactivate reminder %s: %w", id, err)
	}
	s.log.Info("reminder cancelled", logx.String("reminder", id))
	return nil
}

// Restore schedules every active record. Failures are logged per reminder
// and do not stop the rest. It returns the number of live triggers created.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active reminders: %w", err)
	}
	n := 0
	for _, r := range active {
		t, err := s.sched.Schedule(r, reminder.ContentFor(r, s.words))
		if err != nil {
			s.log.Warn("restore reminder failed", logx.String("reminder", r.ID), logx.Err(err))
			continue
		}
		if !t.Expired {
			n++
		}
	}
	s.log.Info("reminders restored", logx.Int("active", len(active)), logx.Int("scheduled", n))
	return n, nil
}

func (s *Service) schedule(r reminder.Reminder) error {
	t, err := s.sched.Schedule(r, reminder.ContentFor(r, s.words))
	if err != nil {
		return fmt.Errorf("schedule reminder %s: %w", r.ID, err)
	}
	if t.Expired {
		s.log.Info("reminder window already over; nothing scheduled", logx.String("reminder", r.ID))
	}
	return nil
}
