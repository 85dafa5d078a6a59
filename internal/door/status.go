// Package door fetches and normalizes the state of the door status endpoint.
package door

import (
	"strings"
	"time"
)

// Status is the tri-state door state.
type Status string

const (
	Open    Status = "open"
	Closed  Status = "closed"
	Unknown Status = "unknown"
)

func (s Status) String() string {
	if s == "" {
		return string(Unknown)
	}
	return string(s)
}

// Upper is the form used in outbound notifications ("OPEN").
func (s Status) Upper() string { return strings.ToUpper(s.String()) }

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case Open, Closed, Unknown:
		return true
	}
	return false
}

// Normalize maps a raw endpoint value onto a Status. Matching ignores
// surrounding space and case and accepts the German words.
func Normalize(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "offen":
		return Open
	case "closed", "geschlossen":
		return Closed
	default:
		return Unknown
	}
}

// Sample is one poll observation.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// NewSample stamps s with t in UTC.
func NewSample(t time.Time, s Status) Sample {
	return Sample{Timestamp: t.UTC(), Status: s}
}
