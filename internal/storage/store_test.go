package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vocabremind/internal/reminder"
	logx "vocabremind/pkg/logx"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func sample(id, user string, created time.Time) reminder.Reminder {
	return reminder.Reminder{
		ID:          id,
		UserID:      user,
		DeviceToken: "tok-" + id,
		StartDate:   day(2024, 1, 1),
		EndDate:     day(2024, 1, 3),
		Frequency:   "8:00 AM",
		Title:       reminder.DefaultTitle,
		Body:        reminder.DefaultBody,
		IsActive:    true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	a := sample("a", "u1", t0)
	b := sample("b", "u2", t0.Add(time.Second))
	for _, r := range []reminder.Reminder{a, b} {
		if err := st.Create(ctx, r); err != nil {
			t.Fatalf("Create %s: %v", r.ID, err)
		}
	}

	if err := st.Create(ctx, sample("a2", "u1", t0)); !errors.Is(err, ErrConflict) {
		t.Fatalf("second active reminder for u1 err=%v want ErrConflict", err)
	}

	got, err := st.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(a, got); diff != "" {
		t.Fatalf("Get mismatch (-want +got):\n%s", diff)
	}
	if _, err := st.Get(ctx, "missing"); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("Get missing err=%v", err)
	}

	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if diff := cmp.Diff([]reminder.Reminder{a, b}, active); diff != "" {
		t.Fatalf("ListActive mismatch (-want +got):\n%s", diff)
	}

	upd := a
	upd.Frequency = "9:00 PM"
	upd.EndDate = day(2024, 2, 1)
	upd.UpdatedAt = t0.Add(time.Hour)
	if err := st.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = st.FindActiveByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FindActiveByUser: %v", err)
	}
	if diff := cmp.Diff(upd, got); diff != "" {
		t.Fatalf("FindActiveByUser mismatch (-want +got):\n%s", diff)
	}
	if err := st.Update(ctx, sample("missing", "u9", t0)); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("Update missing err=%v", err)
	}

	if err := st.SetActive(ctx, "a", false, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := st.FindActiveByUser(ctx, "u1"); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("FindActiveByUser after deactivate err=%v", err)
	}
	active, err = st.ListActive(ctx)
	if err != nil || len(active) != 1 || active[0].ID != "b" {
		t.Fatalf("ListActive after deactivate=%v err=%v", active, err)
	}
	if err := st.SetActive(ctx, "missing", false, t0); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("SetActive missing err=%v", err)
	}

	// u1 may hold a new active reminder once the old one is inactive.
	if err := st.Create(ctx, sample("a2", "u1", t0.Add(3*time.Hour))); err != nil {
		t.Fatalf("Create after deactivate: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	st, err := Open(context.Background(), Config{}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, st)
	_ = st.Close()
	if _, err := st.ListActive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("ListActive after close err=%v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "reminders.json")
	cfg := Config{Driver: "file", Path: path}
	st, err := Open(context.Background(), cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, st)

	// Reopen from the journal alone, before compaction.
	again, err := Open(context.Background(), cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	assertReloaded(t, again)
	_ = again.Close()

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "reminders.snapshot.json")); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	third, err := Open(context.Background(), cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer third.Close()
	assertReloaded(t, third)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.db")
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, st)
	_ = st.Close()

	again, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	assertReloaded(t, again)
}

// TestPostgresStore needs a disposable database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("VOCABREMIND_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOCABREMIND_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	st, err := Open(ctx, Config{Driver: "postgres", DSN: dsn}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, err := st.(*postgresStore).db.Exec(ctx, `TRUNCATE reminders`); err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, st)
}

func assertReloaded(t *testing.T, st Store) {
	t.Helper()
	active, err := st.ListActive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(active))
	for _, r := range active {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"b", "a2"}, ids); diff != "" {
		t.Fatalf("active ids after reopen (-want +got):\n%s", diff)
	}
	got, err := st.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive || got.Frequency != "9:00 PM" || !got.EndDate.Equal(day(2024, 2, 1)) {
		t.Fatalf("record a after reopen=%+v", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(context.Background(), Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestSQLiteCorruptTimestampIsAnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "reminders.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if err := st.Create(ctx, sample("r1", "u1", day(2024, 1, 1))); err != nil {
		t.Fatal(err)
	}
	db := st.(*sqliteStore).db
	if _, err := db.ExecContext(ctx, `UPDATE reminders SET created_at = 'yesterday' WHERE id = 'r1'`); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Get(ctx, "r1"); err == nil {
		t.Fatalf("Get with corrupt created_at err=nil")
	}
	if _, err := st.ListActive(ctx); err == nil {
		t.Fatalf("ListActive with corrupt created_at err=nil")
	}
}
