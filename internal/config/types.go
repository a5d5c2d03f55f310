package config

// Config is the whole service configuration. Every duration is a Go
// duration string ("500ms", "10s", "1m").
type Config struct {
	HTTP       HTTPConfig        `json:"http"`
	Logging    LoggingConfig     `json:"logging"`
	Scheduler  SchedulerConfig   `json:"scheduler"`
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	Dispatch   DispatchConfig    `json:"dispatch"`
	Delivery   DeliveryConfig    `json:"delivery"`
	Storage    StorageConfig     `json:"storage"`
	Vocabulary VocabularyConfig  `json:"vocabulary"`
	Metrics    MetricsConfig     `json:"metrics"`
}

// HTTPConfig controls the API server.
//
// Security note: Token guards /api, /healthz, /metrics and pprof. Leave it
// empty only when Addr is loopback or behind a trusted proxy.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token   string `json:"token,omitempty"` // do not log
	Pprof   bool   `json:"pprof,omitempty"`

	// CORSOrigins empty allows any origin.
	CORSOrigins []string `json:"cors_origins,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert forwards WARN+ lines to a Telegram chat through the
// delivery bot. It needs delivery.telegram.token.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	Chat       string `json:"chat"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the trigger registry.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is the IANA zone rules are built in. Default "UTC".
	Timezone string `json:"timezone,omitempty"`
	// TaskTimeout bounds one dispatch run, retries included.
	TaskTimeout string `json:"task_timeout,omitempty"`
	// Sweep is the cron spec of the expiry sweep. Default "@hourly".
	Sweep string `json:"sweep,omitempty"`
}

// TaskEngineConfig controls the executor firings are submitted to.
//
// Enabled is a pointer so an omitted value follows scheduler.enabled.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// DispatchConfig throttles and retries deliveries. retry_max 0 means a
// failed delivery is logged and dropped.
type DispatchConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// DeliveryConfig selects how messages leave the process.
//
// Driver values:
//   - "log": write to the log only (default)
//   - "telegram": send to the chat id in the reminder's deviceToken
type DeliveryConfig struct {
	Driver   string           `json:"driver"`
	Timeout  string           `json:"timeout,omitempty"`
	Telegram DeliveryTelegram `json:"telegram"`
}

type DeliveryTelegram struct {
	Token string `json:"token"` // do not log
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/vocabremind.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxConns    int32  `json:"max_conns,omitempty"`
}

// VocabularyConfig points at the word list. An empty path disables
// vocabulary content; firings then deliver the reminder's own text.
type VocabularyConfig struct {
	Path string `json:"path"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}
