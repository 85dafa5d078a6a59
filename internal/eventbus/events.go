package eventbus

import "time"

const (
	TypeDoorSampled        = "door.sampled"
	TypeDoorChanged        = "door.changed"
	TypeNotifierSent       = "notifier.sent"
	TypeNotifierFailed     = "notifier.failed"
	TypeNotifierSuppressed = "notifier.suppressed"
)

// DoorSampled is the Data of a door.sampled event.
type DoorSampled struct {
	Status string
	At     time.Time
	// Err is set when the sample could not be stored.
	Err string
}

// DoorChanged is the Data of a door.changed event. Previous is empty on
// the first observation after start.
type DoorChanged struct {
	Status   string    `json:"status"`
	Previous string    `json:"previous,omitempty"`
	At       time.Time `json:"at"`
}

// Delivery is the Data of notifier.sent and notifier.failed events.
type Delivery struct {
	ChatID int64
	Status string
	Took   time.Duration
	Err    string
}
