package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// envOverlay holds the environment variables that override file values.
// Empty variables leave the file value alone.
type envOverlay struct {
	Token        string `env:"DOORBOT_TELEGRAM_TOKEN"`
	LegacyToken  string `env:"TELEGRAM_BOT_TOKEN"`
	DoorURL      string `env:"DOORBOT_DOOR_URL"`
	PollInterval string `env:"DOORBOT_POLL_INTERVAL"`
	DataDir      string `env:"DOORBOT_DATA_DIR"`
	LogLevel     string `env:"DOORBOT_LOG_LEVEL"`
}

// ApplyEnv overlays DOORBOT_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

func applyEnv(cfg *Config, opts env.Options) error {
	if cfg == nil {
		return nil
	}
	var o envOverlay
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	switch {
	case strings.TrimSpace(o.Token) != "":
		cfg.Telegram.Token = strings.TrimSpace(o.Token)
	case strings.TrimSpace(o.LegacyToken) != "" && strings.TrimSpace(cfg.Telegram.Token) == "":
		cfg.Telegram.Token = strings.TrimSpace(o.LegacyToken)
	}
	if v := strings.TrimSpace(o.DoorURL); v != "" {
		cfg.Door.URL = v
	}
	if v := strings.TrimSpace(o.PollInterval); v != "" {
		cfg.Door.PollInterval = v
	}
	if v := strings.TrimSpace(o.DataDir); v != "" {
		cfg.Storage.Dir = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
