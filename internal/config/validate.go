package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks the values a component would reject at startup. All
// problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	dur("http.read_timeout", cfg.HTTP.ReadTimeout)
	dur("http.write_timeout", cfg.HTTP.WriteTimeout)
	dur("http.idle_timeout", cfg.HTTP.IdleTimeout)

	if tz := trim(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	dur("scheduler.task_timeout", cfg.Scheduler.TaskTimeout)
	if s := trim(cfg.Scheduler.Sweep); s != "" {
		p := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := p.Parse(s); err != nil {
			add(fmt.Errorf("scheduler.sweep: %w", err))
		}
	}

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			add(errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
		}
		dur("task_engine.default_timeout", te.DefaultTimeout)
		dur("task_engine.max_queue_delay", te.MaxQueueDelay)
	}

	if cfg.Dispatch.RatePerSec < 0 || cfg.Dispatch.RetryMax < 0 {
		add(errors.New("dispatch: rate_per_sec and retry_max must be >= 0"))
	}
	dur("dispatch.retry_base", cfg.Dispatch.RetryBase)
	dur("dispatch.retry_max_delay", cfg.Dispatch.RetryMaxDelay)

	telegram := false
	switch strings.ToLower(trim(cfg.Delivery.Driver)) {
	case "", "log":
	case "telegram":
		telegram = true
		if trim(cfg.Delivery.Telegram.Token) == "" {
			add(errors.New("delivery.telegram.token is required for the telegram driver"))
		}
	default:
		add(fmt.Errorf("delivery.driver: unknown driver %q", cfg.Delivery.Driver))
	}
	dur("delivery.timeout", cfg.Delivery.Timeout)

	if a := cfg.Logging.Alert; a.Enabled {
		if !telegram {
			add(errors.New("logging.alert requires delivery.driver telegram"))
		}
		if trim(a.Chat) == "" {
			add(errors.New("logging.alert.chat is required when alerts are enabled"))
		}
	}
	if cfg.Logging.File.Enabled && trim(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when file logging is enabled"))
	}

	switch strings.ToLower(trim(cfg.Storage.Driver)) {
	case "", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if trim(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path is required for the %s driver", trim(cfg.Storage.Driver)))
		}
	case "postgres", "postgresql", "pg":
		if trim(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn is required for the postgres driver"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if cfg.Storage.MaxConns < 0 {
		add(errors.New("storage.max_conns must be >= 0"))
	}

	return errors.Join(errs...)
}
