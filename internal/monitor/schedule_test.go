package monitor

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)
	tests := []struct {
		spec    string
		next    time.Time
		wantErr bool
	}{
		{spec: "60s", next: base.Add(time.Minute)},
		{spec: "250ms", next: base.Add(250 * time.Millisecond)},
		{spec: "@every 30s", next: base.Add(30 * time.Second)},
		{spec: "*/2 * * * *", next: time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC)},
		{spec: "@hourly", next: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)},
		{spec: "", wantErr: true},
		{spec: "0s", wantErr: true},
		{spec: "-5s", wantErr: true},
		{spec: "whenever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			if got := s.Next(base); !got.Equal(tt.next) {
				t.Fatalf("Next=%v want %v", got, tt.next)
			}
		})
	}
}
