package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"vocabremind/internal/reminder"
	logx "vocabremind/pkg/logx"
)

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

const pgUniqueViolation = "23505"

const pgColumns = `id, user_id, device_token, start_date, end_date, frequency, title, body, is_active, created_at, updated_at`

type postgresStore struct {
	db  *pgxpool.Pool
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	if err := runPostgresMigrations(dsn, log); err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &postgresStore{db: pool, log: log}, nil
}

// runPostgresMigrations applies the embedded migrations. It uses a separate
// database/sql handle because golang-migrate's postgres driver needs one.
func runPostgresMigrations(dsn string, log logx.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("cannot connect to db: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("cannot create driver: %w", err)
	}
	src, err := iofs.New(postgresMigrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("cannot open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("cannot create migrate: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("cannot migrate up: %w", err)
	}
	v, _, _ := m.Version()
	log.Info("postgres migrations applied", logx.Uint64("version", uint64(v)))
	return nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.db.Close()
	return nil
}

func (s *postgresStore) ListActive(ctx context.Context) ([]reminder.Reminder, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pgColumns+` FROM reminders WHERE is_active ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminder.Reminder, 0, 16)
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	r, err := scanPostgres(s.db.QueryRow(ctx, `SELECT `+pgColumns+` FROM reminders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return reminder.Reminder{}, notFound(id)
	}
	return r, err
}

func (s *postgresStore) FindActiveByUser(ctx context.Context, userID string) (reminder.Reminder, error) {
	r, err := scanPostgres(s.db.QueryRow(ctx,
		`SELECT `+pgColumns+` FROM reminders WHERE user_id = $1 AND is_active ORDER BY updated_at DESC LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return reminder.Reminder{}, fmt.Errorf("user %s: %w", userID, reminder.ErrNotFound)
	}
	return r, err
}

func (s *postgresStore) Create(ctx context.Context, r reminder.Reminder) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO reminders (`+pgColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.UserID, r.DeviceToken, r.StartDate, r.EndDate, r.Frequency, r.Title, r.Body, r.IsActive, r.CreatedAt, r.UpdatedAt,
	)
	return pgErr(err)
}

func (s *postgresStore) Update(ctx context.Context, r reminder.Reminder) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE reminders SET user_id = $2, device_token = $3, start_date = $4, end_date = $5, frequency = $6,
		        title = $7, body = $8, is_active = $9, updated_at = $10
		 WHERE id = $1`,
		r.ID, r.UserID, r.DeviceToken, r.StartDate, r.EndDate, r.Frequency, r.Title, r.Body, r.IsActive, r.UpdatedAt,
	)
	if err != nil {
		return pgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(r.ID)
	}
	return nil
}

func (s *postgresStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE reminders SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, at)
	if err != nil {
		return pgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func scanPostgres(row pgx.Row) (reminder.Reminder, error) {
	var r reminder.Reminder
	err := row.Scan(&r.ID, &r.UserID, &r.DeviceToken, &r.StartDate, &r.EndDate, &r.Frequency,
		&r.Title, &r.Body, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.StartDate = r.StartDate.UTC()
	r.EndDate = r.EndDate.UTC()
	return r, nil
}

func pgErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pe.ConstraintName)
	}
	return err
}
