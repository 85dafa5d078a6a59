package app

import (
	"context"
	"fmt"
	"time"

	"doorbot/internal/runtime/supervisor"
)

// checkMonitor reports an error when the monitor missed its schedule by
// more than the fetch budget plus a minute.
func (a *App) checkMonitor(now time.Time) error {
	slack := 2*a.door.FetchTimeout + time.Minute
	st := a.mon.Stats()
	if st.LastSample == nil {
		if !a.started.IsZero() && now.Sub(a.started) > slack {
			return fmt.Errorf("no sample since start %s ago", now.Sub(a.started).Round(time.Second))
		}
		return nil
	}
	due := a.door.Schedule.Next(st.LastSample.Timestamp).Add(slack)
	if now.After(due) {
		return fmt.Errorf("last sample %s ago is overdue", now.Sub(st.LastSample.Timestamp).Round(time.Second))
	}
	return nil
}

func (a *App) healthy() bool { return a.checkMonitor(time.Now()) == nil }

// healthDetails backs /healthz.
func (a *App) healthDetails() (map[string]any, error) {
	now := time.Now()
	st := a.mon.Stats()
	out := map[string]any{
		"uptime_sec":     int64(now.Sub(a.started).Seconds()),
		"cycles":         st.Cycles,
		"panics":         st.Panics,
		"events_dropped": a.bus.Dropped(),
		"storage":        a.store.Driver(),
	}
	if st.LastSample != nil {
		out["last_status"] = st.LastSample.Status.String()
		out["last_sample"] = st.LastSample.Timestamp.Format(time.RFC3339)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if ids, err := a.store.Subscribers().List(ctx); err == nil {
		out["subscribers"] = len(ids)
	}
	out["supervisors"] = a.supervisorSnapshots()
	return out, a.checkMonitor(now)
}

// supervisorSnapshots collects every registered supervisor by name.
func (a *App) supervisorSnapshots() map[string]supervisor.Snapshot {
	out := map[string]supervisor.Snapshot{}
	for _, name := range a.sups.Names() {
		if sup := a.sups.Get(name); sup != nil {
			out[name] = sup.Snapshot()
		}
	}
	return out
}
