package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"doorbot/internal/monitor"
	logx "doorbot/pkg/logx"
)

const (
	DefaultDoorURL      = "https://door.mathe-cafe.de"
	DefaultPollInterval = 60 * time.Second
	DefaultFetchTimeout = 10 * time.Second
	DefaultDataDir      = "./data"
	DefaultMessage      = "Cafe door is now: "
	DefaultMetricsAddr  = "127.0.0.1:9310"
	DefaultNATSSubject  = "doorbot.door.changed"
)

// ErrNoToken is returned when no Telegram token is configured.
var ErrNoToken = errors.New("telegram.token is required (or set DOORBOT_TELEGRAM_TOKEN)")

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Console: true},
		Door: DoorConfig{
			URL:          DefaultDoorURL,
			PollInterval: DefaultPollInterval.String(),
			FetchTimeout: DefaultFetchTimeout.String(),
		},
		Storage:  StorageConfig{Driver: "file", Dir: DefaultDataDir},
		Notifier: NotifierConfig{Message: DefaultMessage},
	}
}

// ApplyDefaults fills empty fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Door.URL) == "" {
		cfg.Door.URL = DefaultDoorURL
	}
	if strings.TrimSpace(cfg.Door.PollInterval) == "" {
		cfg.Door.PollInterval = DefaultPollInterval.String()
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Dir) == "" {
		cfg.Storage.Dir = DefaultDataDir
	}
	if cfg.Notifier.Message == "" {
		cfg.Notifier.Message = DefaultMessage
	}
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.NATS.Enabled && strings.TrimSpace(cfg.NATS.Subject) == "" {
		cfg.NATS.Subject = DefaultNATSSubject
	}
}

// Validate rejects configs the process cannot start with.
// requireToken is false for CLI subcommands that never talk to Telegram.
func Validate(cfg *Config, requireToken bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if requireToken && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrNoToken
	}
	if _, err := cfg.Telegram.PollTimeoutOrDefault(); err != nil {
		return err
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		return fmt.Errorf("logging.telegram.rate_per_sec must be >= 0")
	}
	if _, err := monitor.ParseSchedule(cfg.Door.PollInterval); err != nil {
		return fmt.Errorf("door.poll_interval: %w", err)
	}
	if _, err := cfg.Door.FetchTimeoutOrDefault(); err != nil {
		return err
	}
	if _, err := cfg.Notifier.SendTimeoutOrDefault(); err != nil {
		return err
	}
	if cfg.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file":
	case "sqlite", "sqlite3":
		if _, err := cfg.Storage.BusyTimeoutOrDefault(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
	if cfg.NATS.Enabled && strings.TrimSpace(cfg.NATS.URL) == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	return nil
}
