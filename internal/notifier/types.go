package notifier

import "time"

const (
	DefaultMessage     = "Cafe door is now: "
	DefaultRatePerSec  = 20
	DefaultSendTimeout = 10 * time.Second
)

// Config controls the fan-out.
type Config struct {
	// Message prefixes the upper-cased status.
	Message         string
	RatePerSec      int
	SendTimeout     time.Duration
	NotifyOnStartup bool
}

// Report summarizes one Notify call.
type Report struct {
	Suppressed bool
	Recipients int
	Delivered  int
	Failed     int
	// Err is set when the subscriber list could not be read.
	Err error
}

type HistoryItem struct {
	At        time.Time
	Text      string
	Delivered int
	Failed    int
}
