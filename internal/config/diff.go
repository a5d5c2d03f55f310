package config

import (
	"slices"
	"strings"

	logx "vocabremind/pkg/logx"
)

// SummarizeConfigChange returns the names of the changed sections and safe
// structured attrs for logging. Tokens and DSNs are reported only as
// "_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	o, n := oldCfg.HTTP, newCfg.HTTP
	if o.Enabled != n.Enabled || trim(o.Addr) != trim(n.Addr) || o.Pprof != n.Pprof ||
		trim(o.Token) != trim(n.Token) ||
		trim(o.ReadTimeout) != trim(n.ReadTimeout) ||
		trim(o.WriteTimeout) != trim(n.WriteTimeout) ||
		trim(o.IdleTimeout) != trim(n.IdleTimeout) ||
		!slices.Equal(o.CORSOrigins, n.CORSOrigins) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", n.Enabled),
			logx.String("http.addr", trim(n.Addr)),
			logx.Bool("http.pprof", n.Pprof),
			logx.Bool("http.token_set", trim(n.Token) != ""),
			logx.Int("http.cors_origins", len(n.CORSOrigins)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.alert_enabled", l.Alert.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", s.Enabled),
			logx.String("scheduler.timezone", trim(s.Timezone)),
			logx.String("scheduler.task_timeout", trim(s.TaskTimeout)),
		)
	}

	if !taskEngineEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
		if te := newCfg.TaskEngine; te != nil {
			attrs = append(attrs,
				logx.Int("task_engine.workers", te.Workers),
				logx.Int("task_engine.queue_size", te.QueueSize),
			)
		}
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		d := newCfg.Dispatch
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.rate_per_sec", d.RatePerSec),
			logx.Int("dispatch.retry_max", d.RetryMax),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		d := newCfg.Delivery
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.String("delivery.driver", trim(d.Driver)),
			logx.Bool("delivery.telegram_token_set", trim(d.Telegram.Token) != ""),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		s := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", trim(s.Driver)),
			logx.String("storage.path", trim(s.Path)),
			logx.Bool("storage.dsn_set", trim(s.DSN) != ""),
		)
	}

	if oldCfg.Vocabulary != newCfg.Vocabulary {
		changed = append(changed, "vocabulary")
		attrs = append(attrs, logx.String("vocabulary.path", trim(newCfg.Vocabulary.Path)))
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}

	return changed, attrs
}

// RestartRequired lists changed sections that only take effect after a
// process restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "delivery", "storage", "vocabulary", "metrics":
			out = append(out, s)
		}
	}
	return out
}

func taskEngineEqual(a, b *TaskEngineConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	if (a.Enabled == nil) != (b.Enabled == nil) {
		return false
	}
	if a.Enabled != nil && *a.Enabled != *b.Enabled {
		return false
	}
	x, y := *a, *b
	x.Enabled, y.Enabled = nil, nil
	return x == y
}

func trim(s string) string { return strings.TrimSpace(s) }
