package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Door     DoorConfig     `json:"door"`
	Storage  StorageConfig  `json:"storage"`
	Notifier NotifierConfig `json:"notifier"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
	NATS     NATSConfig     `json:"nats,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	GroupLog     string  `json:"group_log,omitempty"`
	// PollTimeout is the long-poll timeout for getUpdates.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// APIURL points at a self-hosted Bot API server; empty uses api.telegram.org.
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// DoorConfig controls the status endpoint and the poll loop.
//
// PollInterval accepts a Go duration ("60s") or a cron
// expression ("*/2 * * * *", "@every 30s").
type DoorConfig struct {
	URL          string `json:"url"`
	PollInterval string `json:"poll_interval"`
	FetchTimeout string `json:"fetch_timeout"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "file", "dir": "./data" }
//	"storage": { "driver": "sqlite", "path": "./data/doorbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Dir         string `json:"dir,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifierConfig controls subscriber fan-out.
type NotifierConfig struct {
	// Message is prepended to the upper-cased status ("Cafe door is now: OPEN").
	Message     string `json:"message,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	// NotifyOnStartup disables the suppression of the first change after start.
	NotifyOnStartup bool `json:"notify_on_startup,omitempty"`
}

// MetricsConfig controls the optional Prometheus/pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9310").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// NATSConfig controls the optional relay of door changes to NATS.
type NATSConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
	Name    string `json:"name,omitempty"`
}
