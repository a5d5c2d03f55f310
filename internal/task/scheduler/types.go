package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"vocabremind/internal/reminder"
	"vocabremind/internal/task/engine"
)

// Config controls the trigger registry.
type Config struct {
	Enabled bool
	// Timezone is an IANA name used for rules and windows. Empty means UTC.
	Timezone string
	// TaskTimeout bounds one dispatch run. 0 uses the engine default.
	TaskTimeout time.Duration
	// SweepSpec is the cron spec of the expiry sweep. Empty means "@hourly".
	SweepSpec string
}

// Executor accepts fired work.
type Executor interface {
	Enqueue(t engine.Task) error
}

// Dispatcher delivers one firing of a reminder.
type Dispatcher interface {
	Dispatch(ctx context.Context, r reminder.Reminder, c reminder.Content) error
}

// cronRunner is the subset of *cron.Cron the registry drives.
type cronRunner interface {
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
	Remove(id cron.EntryID)
	Entry(id cron.EntryID) cron.Entry
	Start()
	Stop() context.Context
}

// Trigger is the registry's handle for one scheduled reminder. Its fields
// are a snapshot taken at schedule time and must not be modified.
type Trigger struct {
	ID       string
	Reminder reminder.Reminder
	Content  reminder.Content
	Rule     Rule
	// Expired is set when the window had no firing left at schedule time.
	// Such triggers are not kept by the registry.
	Expired bool

	version uint64
	entryID cron.EntryID
	state   *engine.RunState

	fired     int
	lastFired time.Time
}

func taskName(id string) string { return "reminder:" + id }
