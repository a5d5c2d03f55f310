package app

import (
	"errors"
	"strings"
	"time"

	"vocabremind/internal/config"
	"vocabremind/internal/dispatch"
	"vocabremind/internal/httpapi"
	"vocabremind/internal/storage"
	"vocabremind/internal/task/engine"
	"vocabremind/internal/task/scheduler"
	logx "vocabremind/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    l.Alert.Enabled,
			Chat:       l.Alert.Chat,
			MinLevel:   l.Alert.MinLevel,
			RatePerSec: l.Alert.RatePerSec,
		},
	}
}

// mapTaskEngineConfig resolves the engine config. An omitted
// task_engine.enabled follows scheduler.enabled.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: cfg.Scheduler.Enabled}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil {
		if cfg.Scheduler.Enabled && !*te.Enabled {
			return engine.Config{}, errors.New("task_engine.enabled cannot be false while scheduler.enabled is true")
		}
		out.Enabled = *te.Enabled
	}
	out.Workers = te.Workers
	out.QueueSize = te.QueueSize
	out.HistorySize = te.HistorySize
	out.DefaultTimeout = config.DurationOr(te.DefaultTimeout, 0)
	out.MaxQueueDelay = config.DurationOr(te.MaxQueueDelay, 0)
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	s := cfg.Scheduler
	return scheduler.Config{
		Enabled:     s.Enabled,
		Timezone:    strings.TrimSpace(s.Timezone),
		TaskTimeout: config.DurationOr(s.TaskTimeout, 0),
		SweepSpec:   strings.TrimSpace(s.Sweep),
	}
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	d := cfg.Dispatch
	return dispatch.Config{
		RatePerSec:    d.RatePerSec,
		RetryMax:      d.RetryMax,
		RetryBase:     config.DurationOr(d.RetryBase, 0),
		RetryMaxDelay: config.DurationOr(d.RetryMaxDelay, 0),
		SendTimeout:   config.DurationOr(cfg.Delivery.Timeout, 0),
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	return storage.Config{
		Driver:      strings.TrimSpace(s.Driver),
		Path:        strings.TrimSpace(s.Path),
		DSN:         strings.TrimSpace(s.DSN),
		BusyTimeout: config.DurationOr(s.BusyTimeout, 0),
		MaxConns:    s.MaxConns,
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	return httpapi.Config{
		Enabled:      h.Enabled,
		Addr:         strings.TrimSpace(h.Addr),
		ReadTimeout:  config.DurationOr(h.ReadTimeout, 15*time.Second),
		WriteTimeout: config.DurationOr(h.WriteTimeout, 60*time.Second),
		IdleTimeout:  config.DurationOr(h.IdleTimeout, 60*time.Second),
	}
}
