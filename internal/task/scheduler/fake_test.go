package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vocabremind/internal/reminder"
	"vocabremind/internal/task/engine"
)

// fakeClock is advanced by fakeCron as it replays firings.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeEntry struct {
	id    cron.EntryID
	sched cron.Schedule
	job   cron.Job
	next  time.Time
	prev  time.Time
}

// fakeCron replays schedules against a fakeClock instead of wall time.
type fakeCron struct {
	mu      sync.Mutex
	clock   *fakeClock
	seq     cron.EntryID
	entries map[cron.EntryID]*fakeEntry
	started bool
}

func newFakeCron(clock *fakeClock) *fakeCron {
	return &fakeCron{clock: clock, entries: map[cron.EntryID]*fakeEntry{}}
}

func (f *fakeCron) Schedule(s cron.Schedule, j cron.Job) cron.EntryID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.entries[f.seq] = &fakeEntry{id: f.seq, sched: s, job: j, next: s.Next(f.clock.Now())}
	return f.seq
}

func (f *fakeCron) Remove(id cron.EntryID) {
	f.mu.Lock()
	delete(f.entries, id)
	f.mu.Unlock()
}

func (f *fakeCron) Entry(id cron.EntryID) cron.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return cron.Entry{}
	}
	return cron.Entry{ID: e.id, Next: e.next, Prev: e.prev}
}

func (f *fakeCron) Start() {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
}

func (f *fakeCron) Stop() context.Context {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (f *fakeCron) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// advance runs every due job in time order until the clock reaches until.
// Jobs run without f.mu held, since they call back into Remove.
func (f *fakeCron) advance(until time.Time) {
	for {
		f.mu.Lock()
		var due *fakeEntry
		for _, e := range f.entries {
			if e.next.IsZero() || e.next.After(until) {
				continue
			}
			if due == nil || e.next.Before(due.next) || (e.next.Equal(due.next) && e.id < due.id) {
				due = e
			}
		}
		if due == nil || !f.started {
			f.mu.Unlock()
			f.clock.Set(until)
			return
		}
		at := due.next
		due.prev = at
		due.next = due.sched.Next(at)
		job := due.job
		f.mu.Unlock()

		f.clock.Set(at)
		job.Run()
	}
}

// syncExecutor runs tasks inline.
type syncExecutor struct {
	mu    sync.Mutex
	tasks []string
}

func (e *syncExecutor) Enqueue(t engine.Task) error {
	e.mu.Lock()
	e.tasks = append(e.tasks, t.Name)
	e.mu.Unlock()
	return t.Run(context.Background())
}

type firing struct {
	ID        string
	Frequency string
	At        time.Time
	Content   reminder.Content
}

type recordingDispatcher struct {
	mu    sync.Mutex
	clock *fakeClock
	got   []firing
}

func (d *recordingDispatcher) Dispatch(_ context.Context, r reminder.Reminder, c reminder.Content) error {
	d.mu.Lock()
	d.got = append(d.got, firing{ID: r.ID, Frequency: r.Frequency, At: d.clock.Now(), Content: c})
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) firings() []firing {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]firing(nil), d.got...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (d *recordingDispatcher) times() []time.Time {
	fs := d.firings()
	out := make([]time.Time, len(fs))
	for i, f := range fs {
		out[i] = f.At
	}
	return out
}
