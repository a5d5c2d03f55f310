package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// windowSchedule bounds a base schedule to a window. Before the window it
// yields the first base time at or after Start; past End it yields the zero
// time, which cron treats as "never".
type windowSchedule struct {
	base   cron.Schedule
	window Window
}

func (s *windowSchedule) Next(t time.Time) time.Time {
	if t.Before(s.window.Start) {
		// Base schedules return strictly later times with second precision.
		t = s.window.Start.Add(-time.Second)
	}
	n := s.base.Next(t)
	if n.IsZero() || n.After(s.window.End) {
		return time.Time{}
	}
	return n
}
