package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vocabremind/internal/reminder"
	logx "vocabremind/pkg/logx"
)

//go:embed migrations/sqlite/schema.sql
var sqliteMigrationsFS embed.FS

const sqliteDateLayout = "2006-01-02"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const sqliteColumns = `id, user_id, device_token, start_date, end_date, frequency, title, body, is_active, created_at, updated_at`

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrationsFS.ReadFile("migrations/sqlite/schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListActive(ctx context.Context) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM reminders WHERE is_active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminder.Reminder, 0, 16)
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, notFound(id)
	}
	return r, err
}

func (s *sqliteStore) FindActiveByUser(ctx context.Context, userID string) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM reminders WHERE user_id = ? AND is_active = 1 ORDER BY updated_at DESC LIMIT 1`, userID)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, fmt.Errorf("user %s: %w", userID, reminder.ErrNotFound)
	}
	return r, err
}

func (s *sqliteStore) Create(ctx context.Context, r reminder.Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+sqliteColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.UserID, r.DeviceToken,
		r.StartDate.UTC().Format(sqliteDateLayout), r.EndDate.UTC().Format(sqliteDateLayout),
		r.Frequency, r.Title, r.Body, boolInt(r.IsActive),
		r.CreatedAt.UTC().Format(time.RFC3339Nano), r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return sqliteErr(err)
}

func (s *sqliteStore) Update(ctx context.Context, r reminder.Reminder) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET user_id=?, device_token=?, start_date=?, end_date=?, frequency=?, title=?, body=?, is_active=?, updated_at=?
		 WHERE id = ?`,
		r.UserID, r.DeviceToken,
		r.StartDate.UTC().Format(sqliteDateLayout), r.EndDate.UTC().Format(sqliteDateLayout),
		r.Frequency, r.Title, r.Body, boolInt(r.IsActive),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano), r.ID,
	)
	if err != nil {
		return sqliteErr(err)
	}
	return affectedOrNotFound(res, r.ID)
}

func (s *sqliteStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET is_active=?, updated_at=? WHERE id = ?`,
		boolInt(active), at.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return sqliteErr(err)
	}
	return affectedOrNotFound(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc rowScanner) (reminder.Reminder, error) {
	var (
		r                    reminder.Reminder
		start, end           string
		active               int
		createdAt, updatedAt string
	)
	err := sc.Scan(&r.ID, &r.UserID, &r.DeviceToken, &start, &end, &r.Frequency, &r.Title, &r.Body, &active, &createdAt, &updatedAt)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if r.StartDate, err = time.Parse(sqliteDateLayout, start); err != nil {
		return reminder.Reminder{}, fmt.Errorf("reminder %s start_date: %w", r.ID, err)
	}
	if r.EndDate, err = time.Parse(sqliteDateLayout, end); err != nil {
		return reminder.Reminder{}, fmt.Errorf("reminder %s end_date: %w", r.ID, err)
	}
	r.IsActive = active != 0
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return reminder.Reminder{}, fmt.Errorf("reminder %s created_at: %w", r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return reminder.Reminder{}, fmt.Errorf("reminder %s updated_at: %w", r.ID, err)
	}
	return r, nil
}

func affectedOrNotFound(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// sqliteErr maps constraint failures to ErrConflict. modernc reports them
// in the message text.
func sqliteErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
