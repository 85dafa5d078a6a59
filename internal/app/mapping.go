package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"doorbot/internal/config"
	"doorbot/internal/monitor"
	"doorbot/internal/notifier"
	"doorbot/internal/observability/metrics"
	"doorbot/internal/relay"
	"doorbot/internal/storage"
	logx "doorbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Dir: strings.TrimSpace(sc.Dir)}, nil
	case "sqlite", "sqlite3":
		busy, err := sc.BusyTimeoutOrDefault()
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{
			Driver:      driver,
			Dir:         strings.TrimSpace(sc.Dir),
			Path:        strings.TrimSpace(sc.Path),
			BusyTimeout: busy,
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// MapStorageConfig is used by CLI subcommands that open the stores directly.
func MapStorageConfig(cfg *config.Config) (storage.Config, error) { return mapStorageConfig(cfg) }

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	timeout, err := nc.SendTimeoutOrDefault()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Message:         nc.Message,
		RatePerSec:      nc.RatePerSec,
		SendTimeout:     timeout,
		NotifyOnStartup: nc.NotifyOnStartup,
	}, nil
}

type doorSettings struct {
	URL          string
	Schedule     monitor.Schedule
	FetchTimeout time.Duration
}

func mapDoorConfig(cfg *config.Config) (doorSettings, error) {
	sched, err := monitor.ParseSchedule(cfg.Door.PollInterval)
	if err != nil {
		return doorSettings{}, fmt.Errorf("door.poll_interval: %w", err)
	}
	timeout, err := cfg.Door.FetchTimeoutOrDefault()
	if err != nil {
		return doorSettings{}, err
	}
	return doorSettings{URL: cfg.Door.URL, Schedule: sched, FetchTimeout: timeout}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log. ok is false when unset or invalid.
func logTarget(cfg *config.Config) (chatID int64, ok bool) {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func mapMetricsConfig(cfg *config.Config) metrics.ServerConfig {
	return metrics.ServerConfig{
		Enabled:       cfg.Metrics.Enabled,
		Addr:          cfg.Metrics.Addr,
		Token:         cfg.Metrics.Token,
		AllowInsecure: cfg.Metrics.AllowInsecure,
		Pprof:         cfg.Metrics.Pprof,
	}
}

func mapRelayConfig(cfg *config.Config) relay.Config {
	return relay.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject, Name: cfg.NATS.Name}
}
