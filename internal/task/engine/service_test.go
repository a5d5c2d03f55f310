package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"vocabremind/internal/eventbus"
	logx "vocabremind/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()

	s, _ := startEngine(t, Config{Workers: 1})
	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "ok", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue err=%v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not run")
	}
}

func TestPanicIsRecoveredAsFailure(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1})
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	if err := s.Enqueue(Task{Name: "boom", Run: func(ctx context.Context) error { panic("bad") }}); err != nil {
		t.Fatalf("Enqueue err=%v", err)
	}
	ev := waitEvent(t, ch, eventbus.TypeTaskFailed).Data.(TaskEvent)
	if ev.Name != "boom" || ev.Error != "panic: bad" {
		t.Fatalf("event=%+v", ev)
	}

	// The worker survives and keeps serving.
	ran := make(chan struct{})
	_ = s.Enqueue(Task{Name: "after", Run: func(ctx context.Context) error { close(ran); return nil }})
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
}

func TestOverlapSkipIfRunning(t *testing.T) {
	t.Parallel()

	s, _ := startEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	started := make(chan struct{})
	st := &RunState{}
	task := Task{Name: "slow", State: st, Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue err=%v", err)
	}
	<-started
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue err=%v want ErrOverlapSkip", err)
	}
	close(release)
}

func TestTimeoutCancelsContext(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond})
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	_ = s.Enqueue(Task{Name: "wait", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ev := waitEvent(t, ch, eventbus.TypeTaskFailed).Data.(TaskEvent)
	if ev.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("error=%q", ev.Error)
	}
}

func TestEnqueueStates(t *testing.T) {
	t.Parallel()

	noop := func(ctx context.Context) error { return nil }

	disabled := New(Config{}, logx.Nop(), nil)
	if err := disabled.Enqueue(Task{Name: "x", Run: noop}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled err=%v", err)
	}

	stopped := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := stopped.Enqueue(Task{Name: "x", Run: noop}); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped err=%v", err)
	}
	if err := stopped.Enqueue(Task{Name: " ", Run: noop}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()

	s, _ := startEngine(t, Config{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	_ = s.Enqueue(Task{Name: "hold", Run: func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started
	_ = s.Enqueue(Task{Name: "queued", Run: func(ctx context.Context) error { return nil }})
	if err := s.Enqueue(Task{Name: "overflow", Run: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("overflow err=%v", err)
	}
	if snap := s.Snapshot(); snap.DroppedQueueFull != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestApplyTogglesAndResizes(t *testing.T) {
	t.Parallel()

	s, _ := startEngine(t, Config{Workers: 1, QueueSize: 4})
	ctx := context.Background()

	s.Apply(ctx, Config{Enabled: true, Workers: 3, QueueSize: 8})
	if snap := s.Snapshot(); snap.Workers != 3 || snap.QueueCap != 8 {
		t.Fatalf("after resize workers=%d queue_cap=%d", snap.Workers, snap.QueueCap)
	}

	s.Apply(ctx, Config{Enabled: false})
	if s.Supervisor() != nil {
		t.Fatalf("engine still running after disable")
	}
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("Enqueue on disabled engine succeeded")
	}

	s.Apply(ctx, Config{Enabled: true, Workers: 1})
	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "again", Run: func(context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue after re-enable err=%v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not run after re-enable")
	}
}
