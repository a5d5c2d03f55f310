package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// specParser accepts 5-field specs (seconds optional) and descriptors such as
// "@hourly".
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Window is the inclusive activation range of a trigger.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Closed reports whether the window ended before t.
func (w Window) Closed(t time.Time) bool { return t.After(w.End) }

// Rule fires once per day at Hour:Minute in Location, inside Window.
type Rule struct {
	Hour     int
	Minute   int
	Location *time.Location
	Window   Window

	schedule cron.Schedule
}

// Spec returns the cron expression of the daily rule, without the window.
func (r Rule) Spec() string {
	return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour)
}

// Next returns the first firing strictly after t, or the zero time when the
// window has no firing left.
func (r Rule) Next(t time.Time) time.Time {
	if r.schedule == nil {
		return time.Time{}
	}
	return r.schedule.Next(t)
}

// Exhausted reports whether no firing is left at or after the minute holding
// t. A firing due at exactly t still counts as pending.
func (r Rule) Exhausted(t time.Time) bool {
	return r.Next(t.Truncate(time.Minute).Add(-time.Second)).IsZero()
}

// BuildRule derives the daily rule for freq. The window runs from midnight of
// start's calendar day to 23:59:59.999 of end's calendar day, both in loc.
// A nil loc means UTC.
func BuildRule(freq Frequency, start, end time.Time, loc *time.Location) (Rule, error) {
	if loc == nil {
		loc = time.UTC
	}
	if freq.Hour12 < 1 || freq.Hour12 > 12 || freq.Minute < 0 || freq.Minute > 59 || (freq.Period != AM && freq.Period != PM) {
		return Rule{}, fmt.Errorf("%w: %+v", ErrInvalidFrequency, freq)
	}

	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	w := Window{
		Start: time.Date(sy, sm, sd, 0, 0, 0, 0, loc),
		End:   time.Date(ey, em, ed, 23, 59, 59, int(999*time.Millisecond), loc),
	}
	if w.End.Before(w.Start) {
		return Rule{}, fmt.Errorf("%w: end date %s is before start date %s", ErrScheduling, w.End.Format(time.DateOnly), w.Start.Format(time.DateOnly))
	}

	r := Rule{Hour: freq.Hour24(), Minute: freq.Minute, Location: loc, Window: w}
	base, err := specParser.Parse(r.Spec())
	if err != nil {
		return Rule{}, fmt.Errorf("%w: parse %q: %v", ErrScheduling, r.Spec(), err)
	}
	if ss, ok := base.(*cron.SpecSchedule); ok {
		ss.Location = loc
	}
	r.schedule = &windowSchedule{base: base, window: w}
	return r, nil
}
