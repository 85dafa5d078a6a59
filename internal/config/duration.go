package config

import (
	"fmt"
	"strings"
	"time"
)

// Fallbacks for duration fields left blank or set to zero.
const (
	DefaultPollTimeout = 10 * time.Second
	DefaultSendTimeout = 10 * time.Second
	DefaultBusyTimeout = time.Second
)

// durationOr parses a non-negative Go duration for the config key. Blank
// and zero values yield def.
func durationOr(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration: %w", key, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: %s is negative", key, s)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// PollTimeoutOrDefault is the getUpdates long-poll timeout.
func (c TelegramConfig) PollTimeoutOrDefault() (time.Duration, error) {
	return durationOr("telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout)
}

// FetchTimeoutOrDefault bounds one request to the door endpoint.
func (c DoorConfig) FetchTimeoutOrDefault() (time.Duration, error) {
	return durationOr("door.fetch_timeout", c.FetchTimeout, DefaultFetchTimeout)
}

func (c NotifierConfig) SendTimeoutOrDefault() (time.Duration, error) {
	return durationOr("notifier.send_timeout", c.SendTimeout, DefaultSendTimeout)
}

func (c StorageConfig) BusyTimeoutOrDefault() (time.Duration, error) {
	return durationOr("storage.busy_timeout", c.BusyTimeout, DefaultBusyTimeout)
}
