package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vocabremind/internal/eventbus"
	"vocabremind/internal/reminder"
	"vocabremind/internal/task/engine"
	logx "vocabremind/pkg/logx"
)

const defaultSweepSpec = "@hourly"

// Registry maps reminder ids to live triggers. All mutation and every firing
// decision happen under mu, so a Cancel that returns before a firing's
// decision point always suppresses that firing.
type Registry struct {
	mu sync.Mutex

	cfg      Config
	log      logx.Logger
	bus      eventbus.Bus
	exec     Executor
	dispatch Dispatcher

	now     func() time.Time
	newCron func(loc *time.Location) cronRunner

	c       cronRunner
	loc     *time.Location
	sweepID cron.EntryID

	triggers map[string]*Trigger
	seq      uint64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type Option func(*Registry)

// WithClock replaces time.Now for firing and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(cfg Config, exec Executor, dispatch Dispatcher, log logx.Logger, bus eventbus.Bus, opts ...Option) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		cfg:         cfg,
		log:         log,
		bus:         bus,
		exec:        exec,
		dispatch:    dispatch,
		now:         time.Now,
		triggers:    map[string]*Trigger{},
		lastEnqWarn: map[string]time.Time{},
	}
	r.newCron = func(loc *time.Location) cronRunner {
		return cron.New(cron.WithParser(specParser), cron.WithLocation(loc))
	}
	for _, o := range opts {
		o(r)
	}
	r.loc = loadLocation(cfg.Timezone, log)
	return r
}

func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Enabled
}

// Location returns the zone rules and windows are built in.
func (r *Registry) Location() *time.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loc
}

// Len returns the number of live triggers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

// Schedule registers rem, replacing any trigger already held for rem.ID.
//
// A malformed frequency fails with ErrInvalidFrequency and an unusable window
// or disabled registry with ErrScheduling; in both cases the registry is left
// as it was. A window with no firing left after now succeeds with an Expired
// trigger that is not kept.
func (r *Registry) Schedule(rem reminder.Reminder, content reminder.Content) (*Trigger, error) {
	id := strings.TrimSpace(rem.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: reminder id is required", ErrScheduling)
	}
	freq, err := ParseFrequency(rem.Frequency)
	if err != nil {
		return nil, err
	}
	if content == nil {
		content = reminder.FixedContent{Title: rem.Title, Body: rem.Body}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rule, err := BuildRule(freq, rem.StartDate, rem.EndDate, r.loc)
	if err != nil {
		return nil, err
	}
	if !r.cfg.Enabled {
		return nil, fmt.Errorf("%w: scheduler disabled", ErrScheduling)
	}

	replaced := r.removeLocked(id)

	now := r.now()
	t := &Trigger{ID: id, Reminder: rem, Content: content, Rule: rule}
	next := rule.Next(now)
	if next.IsZero() {
		t.Expired = true
		r.log.Info("reminder window has no firing left",
			logx.String("reminder", id),
			logx.Time("window_end", rule.Window.End),
			logx.Bool("replaced", replaced),
		)
		return t, nil
	}

	r.seq++
	t.version = r.seq
	t.state = &engine.RunState{}
	if r.c != nil {
		r.addLocked(t)
	}
	r.triggers[id] = t

	r.log.Debug("reminder scheduled",
		logx.String("reminder", id),
		logx.String("spec", rule.Spec()),
		logx.String("tz", r.loc.String()),
		logx.Time("next", next),
		logx.Bool("replaced", replaced),
	)
	return t, nil
}

// Cancel removes the trigger for id. It reports whether one existed.
func (r *Registry) Cancel(id string) bool {
	id = strings.TrimSpace(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.removeLocked(id)
	if ok {
		r.log.Debug("reminder cancelled", logx.String("reminder", id))
	}
	return ok
}

// Start creates the cron runner and registers every held trigger.
func (r *Registry) Start(ctx context.Context) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	if !r.cfg.Enabled {
		r.log.Info("scheduler disabled")
		return
	}
	r.startLocked()
	r.log.Info("scheduler started", logx.String("tz", r.loc.String()), logx.Int("triggers", len(r.triggers)))
}

// Stop halts the cron runner. Held triggers stay registered and resume on the
// next Start.
func (r *Registry) Stop(ctx context.Context) {
	start := time.Now()
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.sweepID = 0
	for _, t := range r.triggers {
		t.entryID = 0
	}
	r.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	r.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Apply updates the config. A timezone change rebuilds every rule in the new
// zone; toggling Enabled starts or stops the runner.
func (r *Registry) Apply(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldTZ := strings.TrimSpace(r.cfg.Timezone)
	wasEnabled := r.cfg.Enabled
	r.cfg = cfg

	if !cfg.Enabled {
		if r.c != nil {
			r.stopLocked()
			r.log.Info("scheduler disabled by config")
		}
		return
	}

	if oldTZ != strings.TrimSpace(cfg.Timezone) {
		r.loc = loadLocation(cfg.Timezone, r.log)
		r.rebuildRulesLocked()
		if r.c != nil {
			r.stopLocked()
			r.startLocked()
			r.log.Info("scheduler restarted", logx.String("tz", r.loc.String()), logx.Int("triggers", len(r.triggers)))
			return
		}
	}

	if !wasEnabled && r.c == nil {
		r.startLocked()
		r.log.Info("scheduler enabled by config", logx.Int("triggers", len(r.triggers)))
	}
}

func (r *Registry) startLocked() {
	r.c = r.newCron(r.loc)
	for _, t := range r.triggers {
		r.addLocked(t)
	}
	spec := strings.TrimSpace(r.cfg.SweepSpec)
	if spec == "" {
		spec = defaultSweepSpec
	}
	if sched, err := specParser.Parse(spec); err != nil {
		r.log.Warn("invalid sweep spec; expiry sweep disabled", logx.String("spec", spec), logx.Err(err))
	} else {
		r.sweepID = r.c.Schedule(sched, cron.FuncJob(r.Sweep))
	}
	r.c.Start()
}

// stopLocked stops the runner without waiting for running jobs. Jobs take
// mu, so waiting here would deadlock.
func (r *Registry) stopLocked() {
	r.c.Stop()
	r.c = nil
	r.sweepID = 0
	for _, t := range r.triggers {
		t.entryID = 0
	}
}

func (r *Registry) addLocked(t *Trigger) {
	id, ver := t.ID, t.version
	t.entryID = r.c.Schedule(t.Rule.schedule, cron.FuncJob(func() { r.fire(id, ver) }))
}

func (r *Registry) removeLocked(id string) bool {
	t, ok := r.triggers[id]
	if !ok {
		return false
	}
	if r.c != nil && t.entryID != 0 {
		r.c.Remove(t.entryID)
	}
	delete(r.triggers, id)
	return true
}

// rebuildRulesLocked re-derives every rule in r.loc. Triggers whose window
// closed in the new zone are dropped.
func (r *Registry) rebuildRulesLocked() {
	now := r.now()
	for id, t := range r.triggers {
		freq, err := ParseFrequency(t.Reminder.Frequency)
		if err != nil {
			continue
		}
		rule, err := BuildRule(freq, t.Reminder.StartDate, t.Reminder.EndDate, r.loc)
		if err != nil || rule.Exhausted(now) {
			r.evictLocked(t, "expired after timezone change")
			continue
		}
		if r.c != nil && t.entryID != 0 {
			r.c.Remove(t.entryID)
			t.entryID = 0
		}
		r.seq++
		t.version = r.seq
		t.Rule = rule
		r.triggers[id] = t
	}
}

// fire runs on the cron goroutine at each firing time.
func (r *Registry) fire(id string, ver uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.triggers[id]
	if !ok || t.version != ver {
		// Replaced or cancelled since this entry was armed.
		return
	}
	now := r.now()
	if t.Rule.Window.Closed(now) {
		r.evictLocked(t, "window closed")
		return
	}
	if !t.Rule.Window.Contains(now) {
		return
	}

	t.fired++
	t.lastFired = now
	eventbus.Publish(r.bus, eventbus.TypeTriggerFired, FireEvent{Reminder: id, At: now})

	if r.exec != nil && r.dispatch != nil {
		rem, content, d := t.Reminder, t.Content, r.dispatch
		err := r.exec.Enqueue(engine.Task{
			Name:    taskName(id),
			Timeout: r.cfg.TaskTimeout,
			Opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning},
			State:   t.state,
			Run: func(ctx context.Context) error {
				return d.Dispatch(ctx, rem, content)
			},
		})
		r.reportEnqueueError(id, err)
	}

	if t.Rule.Next(now).IsZero() {
		r.evictLocked(t, "last firing")
	}
}

// Sweep evicts triggers that have no firing left. It runs on the sweep
// schedule and is safe to call directly.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, t := range r.triggers {
		if t.Rule.Exhausted(now) {
			r.evictLocked(t, "no firing left")
		}
	}
}

func (r *Registry) evictLocked(t *Trigger, reason string) {
	if !r.removeLocked(t.ID) {
		return
	}
	eventbus.Publish(r.bus, eventbus.TypeTriggerExpired, FireEvent{Reminder: t.ID, At: r.now()})
	r.log.Info("reminder trigger expired",
		logx.String("reminder", t.ID),
		logx.String("reason", reason),
		logx.Int("fired", t.fired),
	)
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "UTC") {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}
