package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m"). See Defaults for omitted values.
type Config struct {
	// AppID namespaces every stored record: artifacts/{app_id}/users/...
	AppID string `json:"app_id"`

	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`
	Engine    EngineConfig    `json:"engine"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Router    RouterConfig    `json:"router"`
	Logging   LoggingConfig   `json:"logging"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	// SendRate caps outbound API calls per second.
	SendRate  float64 `json:"send_rate,omitempty"`
	SendBurst int     `json:"send_burst,omitempty"`
	APIURL    string  `json:"api_url,omitempty"`
}

// StorageConfig selects the document store.
//
//	"storage": { "driver": "sqlite", "path": "data/nightbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// CompactEvery is the number of journal writes between snapshots (file driver).
	CompactEvery int `json:"compact_every,omitempty"`
}

// EngineConfig controls the worker pool that runs fired jobs.
type EngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
}

type SchedulerConfig struct {
	// JobTimeout bounds one delivery attempt of a fired job.
	JobTimeout string `json:"job_timeout,omitempty"`
	// RetryMax overrides engine.retry_max for fired jobs; negative disables.
	RetryMax int `json:"retry_max,omitempty"`
}

// RouterConfig controls inbound update handling.
type RouterConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	// UpdateBuffer is the capacity of the adapter -> router channel.
	UpdateBuffer int `json:"update_buffer,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// Format is "pretty" or "json".
	Format string        `json:"format,omitempty"`
	File   LoggingFile   `json:"file"`
	Alerts LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts forwards warnings and errors to a Telegram chat.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// OpsConfig controls the operational HTTP server (/healthz, /readyz,
// /metrics, /jobs, pprof).
//
// Prefer a loopback address. A non-loopback bind needs a token or an
// explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (never logged)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile works.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
