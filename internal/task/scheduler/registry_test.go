package scheduler

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"

	"vocabremind/internal/eventbus"
	"vocabremind/internal/reminder"
	"vocabremind/internal/vocabulary"
	logx "vocabremind/pkg/logx"
)

type harness struct {
	clock    *fakeClock
	cron     *fakeCron
	exec     *syncExecutor
	dispatch *recordingDispatcher
	reg      *Registry
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{t: now}, exec: &syncExecutor{}}
	h.cron = newFakeCron(h.clock)
	h.dispatch = &recordingDispatcher{clock: h.clock}
	h.reg = New(Config{Enabled: true}, h.exec, h.dispatch, logx.Nop(), eventbus.New(), WithClock(h.clock.Now))
	h.reg.newCron = func(*time.Location) cronRunner { return h.cron }
	h.reg.Start(t.Context())
	return h
}

func rem(id, freq string, start, end time.Time) reminder.Reminder {
	return reminder.Reminder{
		ID:          id,
		UserID:      "u-" + id,
		DeviceToken: "token-" + id,
		StartDate:   start,
		EndDate:     end,
		Frequency:   freq,
		Title:       "T",
		Body:        "B",
		IsActive:    true,
	}
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDailyFiringsStayInsideWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2023, 12, 30, 12, 0))
	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 3)), nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}

	h.cron.advance(at(2024, 1, 6, 0, 0))

	want := []time.Time{at(2024, 1, 1, 8, 0), at(2024, 1, 2, 8, 0), at(2024, 1, 3, 8, 0)}
	if diff := cmp.Diff(want, h.dispatch.times()); diff != "" {
		t.Fatalf("firings mismatch (-want +got):\n%s", diff)
	}
	if n := h.reg.Len(); n != 0 {
		t.Fatalf("registry should evict after last firing, len=%d", n)
	}
}

func TestUpdateReplacesTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	r := rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 3))
	if _, err := h.reg.Schedule(r, nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	h.cron.advance(at(2024, 1, 1, 12, 0))

	r.Frequency = "9:00 PM"
	if _, err := h.reg.Schedule(r, nil); err != nil {
		t.Fatalf("reschedule err=%v", err)
	}
	h.cron.advance(at(2024, 1, 4, 0, 0))

	want := []time.Time{
		at(2024, 1, 1, 8, 0),
		at(2024, 1, 1, 21, 0),
		at(2024, 1, 2, 21, 0),
		at(2024, 1, 3, 21, 0),
	}
	if diff := cmp.Diff(want, h.dispatch.times()); diff != "" {
		t.Fatalf("firings mismatch (-want +got):\n%s", diff)
	}
	for _, f := range h.dispatch.firings()[1:] {
		if f.Frequency != "9:00 PM" {
			t.Fatalf("firing at %v used stale reminder %q", f.At, f.Frequency)
		}
	}
}

func TestScheduleIsUpsert(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	r := rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 2))
	for i := 0; i < 3; i++ {
		if _, err := h.reg.Schedule(r, nil); err != nil {
			t.Fatalf("Schedule #%d err=%v", i, err)
		}
	}
	if n := h.reg.Len(); n != 1 {
		t.Fatalf("live triggers=%d want 1", n)
	}
	// One trigger entry plus the expiry sweep.
	if n := h.cron.len(); n != 2 {
		t.Fatalf("cron entries=%d want 2", n)
	}

	h.cron.advance(at(2024, 1, 3, 0, 0))
	want := []time.Time{at(2024, 1, 1, 8, 0), at(2024, 1, 2, 8, 0)}
	if diff := cmp.Diff(want, h.dispatch.times()); diff != "" {
		t.Fatalf("one firing per instant expected (-want +got):\n%s", diff)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	if h.reg.Cancel("missing") {
		t.Fatalf("Cancel(unknown) should be false")
	}

	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 5)), nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	h.cron.advance(at(2024, 1, 1, 9, 0))
	if !h.reg.Cancel("r1") {
		t.Fatalf("Cancel(existing) should be true")
	}
	if h.reg.Cancel("r1") {
		t.Fatalf("second Cancel should be false")
	}

	h.cron.advance(at(2024, 1, 6, 0, 0))
	if got := len(h.dispatch.firings()); got != 1 {
		t.Fatalf("firings=%d want 1 (none after cancel)", got)
	}
}

func TestStaleFiringIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 5)), nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	h.reg.mu.Lock()
	oldVer := h.reg.triggers["r1"].version
	h.reg.mu.Unlock()

	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 5)), nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	h.clock.Set(at(2024, 1, 1, 8, 0))
	h.reg.fire("r1", oldVer)
	if got := len(h.dispatch.firings()); got != 0 {
		t.Fatalf("stale callback dispatched %d times", got)
	}
}

func TestPastWindowNeverFires(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 2, 1, 0, 0))
	tr, err := h.reg.Schedule(rem("old", "8:00 AM", day(2024, 1, 1), day(2024, 1, 3)), nil)
	if err != nil {
		t.Fatalf("Schedule err=%v, want no-op success", err)
	}
	if !tr.Expired {
		t.Fatalf("trigger should be marked expired")
	}
	if n := h.reg.Len(); n != 0 {
		t.Fatalf("expired trigger kept, len=%d", n)
	}
	h.cron.advance(at(2024, 3, 1, 0, 0))
	if got := len(h.dispatch.firings()); got != 0 {
		t.Fatalf("firings=%d want 0", got)
	}
}

func TestLastDayAfterFiringTimeIsExpired(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 3, 10, 0))
	tr, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 3)), nil)
	if err != nil || !tr.Expired {
		t.Fatalf("Schedule()=%+v, %v; want expired trigger", tr, err)
	}
}

func TestMalformedInputLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	good := rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 5))
	if _, err := h.reg.Schedule(good, nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	before := h.reg.Snapshot()

	for _, freq := range []string{"13:00 AM", "7:5 AM", "noon"} {
		bad := good
		bad.Frequency = freq
		if _, err := h.reg.Schedule(bad, nil); !errors.Is(err, ErrInvalidFrequency) {
			t.Fatalf("Schedule(%q) err=%v want ErrInvalidFrequency", freq, err)
		}
	}
	inverted := good
	inverted.StartDate, inverted.EndDate = day(2024, 1, 9), day(2024, 1, 2)
	if _, err := h.reg.Schedule(inverted, nil); !errors.Is(err, ErrScheduling) {
		t.Fatalf("inverted window err=%v want ErrScheduling", err)
	}

	if diff := cmp.Diff(before, h.reg.Snapshot()); diff != "" {
		t.Fatalf("registry changed (-before +after):\n%s", diff)
	}

	h.cron.advance(at(2024, 1, 1, 9, 0))
	fs := h.dispatch.firings()
	if len(fs) != 1 || fs[0].Frequency != "8:00 AM" {
		t.Fatalf("original trigger should keep firing, got %+v", fs)
	}
}

func TestDisabledRegistryRejects(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, &syncExecutor{}, nil, logx.Nop(), nil)
	_, err := reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 2)), nil)
	if !errors.Is(err, ErrScheduling) {
		t.Fatalf("err=%v want ErrScheduling", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("disabled registry stored a trigger")
	}
}

func TestIndependentReminders(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	_, _ = h.reg.Schedule(rem("a", "7:00 AM", day(2024, 1, 1), day(2024, 1, 1)), nil)
	_, _ = h.reg.Schedule(rem("b", "7:00 AM", day(2024, 1, 1), day(2024, 1, 2)), nil)
	h.reg.Cancel("a")

	h.cron.advance(at(2024, 1, 3, 0, 0))
	fs := h.dispatch.firings()
	if len(fs) != 2 || fs[0].ID != "b" || fs[1].ID != "b" {
		t.Fatalf("firings=%+v want two for b", fs)
	}
}

func TestContentIsCapturedAtScheduleTime(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	words := reminder.RandomVocabulary{Entries: []vocabulary.Entry{{Name: "apple", IPA: "/ˈæp.əl/", Meaning: "quả táo", Example: "An apple a day."}}}
	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 1)), words); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	h.cron.advance(at(2024, 1, 2, 0, 0))

	fs := h.dispatch.firings()
	if len(fs) != 1 {
		t.Fatalf("firings=%d want 1", len(fs))
	}
	if diff := cmp.Diff(reminder.Content(words), fs[0].Content); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestTimezoneChangeRebuildsRules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 2), day(2024, 1, 2)), nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}
	h.reg.Apply(Config{Enabled: true, Timezone: "Asia/Ho_Chi_Minh"})

	snap := h.reg.Snapshot()
	if snap.Timezone != "Asia/Ho_Chi_Minh" || len(snap.Triggers) != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if want := at(2024, 1, 2, 1, 0); !snap.Triggers[0].Next.Equal(want) {
		t.Fatalf("next=%v want %v", snap.Triggers[0].Next.UTC(), want)
	}
}

func TestSweepEvictsFinishedTriggers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 1, 0, 0))
	_, _ = h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 1)), nil)
	h.clock.Set(at(2024, 1, 1, 9, 0))
	h.reg.Sweep()
	if n := h.reg.Len(); n != 0 {
		t.Fatalf("len=%d want 0 after sweep", n)
	}
}

func TestSweepAtLastFiringKeepsTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t, at(2024, 1, 3, 7, 0))
	if _, err := h.reg.Schedule(rem("r1", "8:00 AM", day(2024, 1, 1), day(2024, 1, 3)), nil); err != nil {
		t.Fatalf("Schedule err=%v", err)
	}

	h.clock.Set(at(2024, 1, 3, 8, 0))
	h.reg.Sweep()
	if n := h.reg.Len(); n != 1 {
		t.Fatalf("len=%d want 1; sweep evicted a trigger with a firing due now", n)
	}

	h.cron.advance(at(2024, 1, 4, 0, 0))
	want := []time.Time{at(2024, 1, 3, 8, 0)}
	if diff := cmp.Diff(want, h.dispatch.times()); diff != "" {
		t.Fatalf("firings mismatch (-want +got):\n%s", diff)
	}
	if n := h.reg.Len(); n != 0 {
		t.Fatalf("len=%d want 0 after last firing", n)
	}
}

func TestRuleExhausted(t *testing.T) {
	t.Parallel()

	r := mustRule(t, "8:00 AM", day(2024, 1, 1), day(2024, 1, 3), time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before last firing", at(2024, 1, 3, 7, 59), false},
		{"at last firing", at(2024, 1, 3, 8, 0), false},
		{"inside last firing minute", at(2024, 1, 3, 8, 0).Add(30 * time.Second), false},
		{"after last firing", at(2024, 1, 3, 8, 1), true},
		{"after window", at(2024, 1, 4, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Exhausted(tt.now); got != tt.want {
				t.Fatalf("Exhausted(%v)=%v want %v", tt.now, got, tt.want)
			}
		})
	}
}
