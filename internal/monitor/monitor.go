// Package monitor runs the door poll loop: fetch, record, detect changes.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"doorbot/internal/door"
	"doorbot/internal/eventbus"
	"doorbot/internal/storage"
	logx "doorbot/pkg/logx"
)

// Fetcher is satisfied by *door.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context) door.Status
}

// ChangeFunc is called synchronously when the observed status differs from
// the last known one.
type ChangeFunc func(ctx context.Context, status door.Status)

type Monitor struct {
	fetcher Fetcher
	history storage.HistoryStore
	sched   Schedule
	log     logx.Logger
	bus     eventbus.Bus
	now     func() time.Time

	// monitor goroutine only
	last    door.Status
	hasLast bool

	cycles     atomic.Uint64
	panics     atomic.Uint64
	lastSample atomic.Pointer[door.Sample]
}

type Option func(*Monitor)

func WithSchedule(s Schedule) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sched = s
		}
	}
}

func WithLogger(l logx.Logger) Option { return func(m *Monitor) { m.log = l } }

func WithBus(b eventbus.Bus) Option { return func(m *Monitor) { m.bus = b } }

// WithClock overrides time.Now for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

const DefaultInterval = 60 * time.Second

func New(f Fetcher, h storage.HistoryStore, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher: f,
		history: h,
		sched:   Every(DefaultInterval),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With(logx.String("comp", "monitor"))
	return m
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
// Cancellation is only observed between cycles: a running cycle finishes
// on a context that ignores cancellation, so history and notifications
// are never cut off halfway.
func (m *Monitor) Run(ctx context.Context, onChange ChangeFunc) error {
	m.log.Info("monitor started")
	defer m.log.Info("monitor stopped")

	cycleCtx := context.WithoutCancel(ctx)
	for {
		m.cycle(cycleCtx, onChange)

		now := time.Now()
		wait := m.sched.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (m *Monitor) cycle(ctx context.Context, onChange ChangeFunc) {
	defer func() {
		if r := recover(); r != nil {
			m.panics.Add(1)
			m.log.Error("monitor cycle panic",
				logx.String("panic", fmt.Sprint(r)),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	defer m.cycles.Add(1)

	status := m.fetcher.Fetch(ctx)
	sample := door.NewSample(m.now(), status)

	var storeErr string
	if err := m.history.Append(ctx, sample); err != nil {
		storeErr = err.Error()
		m.log.Error("history append failed", logx.String("status", status.String()), logx.Err(err))
	}
	m.lastSample.Store(&sample)
	m.publish(eventbus.TypeDoorSampled, eventbus.DoorSampled{Status: status.String(), At: sample.Timestamp, Err: storeErr})

	if m.hasLast && status == m.last {
		m.log.Debug("door status unchanged", logx.String("status", status.String()))
		return
	}
	prev := ""
	if m.hasLast {
		prev = m.last.String()
	}
	m.last, m.hasLast = status, true
	m.log.Info("door status changed", logx.String("status", status.String()), logx.String("previous", prev))
	m.publish(eventbus.TypeDoorChanged, eventbus.DoorChanged{Status: status.String(), Previous: prev, At: sample.Timestamp})

	if onChange != nil {
		onChange(ctx, status)
	}
}

func (m *Monitor) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Stats is a point-in-time view for /health and the systemd watchdog.
type Stats struct {
	Cycles     uint64
	Panics     uint64
	LastSample *door.Sample
}

func (m *Monitor) Stats() Stats {
	st := Stats{Cycles: m.cycles.Load(), Panics: m.panics.Load()}
	if s := m.lastSample.Load(); s != nil {
		cp := *s
		st.LastSample = &cp
	}
	return st
}
