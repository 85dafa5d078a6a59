package notifier

import (
	"context"
	"sync"
	"time"

	"doorbot/internal/door"
	"doorbot/internal/eventbus"
	"doorbot/internal/storage"
	kit "doorbot/internal/transport"
	logx "doorbot/pkg/logx"

	"golang.org/x/time/rate"
)

// Sender is the part of the transport the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

const historyMax = 20

// Dispatcher delivers change notifications. Notify is meant to be called
// from a single goroutine (the monitor); Apply and Snapshot are safe from
// anywhere.
type Dispatcher struct {
	subs   storage.SubscriberStore
	sender Sender
	log    logx.Logger
	bus    eventbus.Bus

	mu           sync.Mutex
	cfg          Config
	limiter      *rate.Limiter
	suppressNext bool

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, subs storage.SubscriberStore, sender Sender, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		subs:         subs,
		sender:       sender,
		log:          log.With(logx.String("comp", "notifier")),
		bus:          bus,
		suppressNext: !cfg.NotifyOnStartup,
	}
	d.applyLocked(cfg)
	return d
}

// Apply swaps the message, rate and timeout. The suppression state is
// left alone.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Text renders the notification for status.
func (d *Dispatcher) Text(status door.Status) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Message + status.Upper()
}

// Notify sends the status to every subscriber, or swallows the call if it
// is the first one since start.
func (d *Dispatcher) Notify(ctx context.Context, status door.Status) Report {
	d.mu.Lock()
	if d.suppressNext {
		d.suppressNext = false
		d.mu.Unlock()
		d.log.Info("startup notification suppressed", logx.String("status", status.String()))
		d.publish(eventbus.TypeNotifierSuppressed, eventbus.Delivery{Status: status.String()})
		return Report{Suppressed: true}
	}
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	ids, err := d.subs.List(ctx)
	if err != nil {
		d.log.Error("list subscribers failed", logx.Err(err))
		return Report{Err: err}
	}
	rep := Report{Recipients: len(ids)}
	if len(ids) == 0 {
		d.log.Info("no subscribers to notify", logx.String("status", status.String()))
		return rep
	}

	text := cfg.Message + status.Upper()
	for _, id := range ids {
		if err := lim.Wait(ctx); err != nil {
			// Only reachable if ctx is cancelled; count the rest as failed.
			rep.Failed += len(ids) - rep.Delivered - rep.Failed
			d.log.Warn("notification fan-out aborted", logx.Err(err))
			break
		}
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := d.sender.SendText(sctx, kit.ChatTarget{ChatID: id}, text, nil)
		cancel()
		took := time.Since(start)
		if err != nil {
			rep.Failed++
			d.log.Warn("notification failed", logx.Int64("chat_id", id), logx.Err(err))
			d.publish(eventbus.TypeNotifierFailed, eventbus.Delivery{ChatID: id, Status: status.String(), Took: took, Err: err.Error()})
			continue
		}
		rep.Delivered++
		d.publish(eventbus.TypeNotifierSent, eventbus.Delivery{ChatID: id, Status: status.String(), Took: took})
	}
	d.log.Info("notification fan-out done",
		logx.String("status", status.String()),
		logx.Int("recipients", rep.Recipients),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
	)
	d.appendHistory(HistoryItem{At: time.Now(), Text: text, Delivered: rep.Delivered, Failed: rep.Failed})
	return rep
}

func (d *Dispatcher) publish(typ string, data eventbus.Delivery) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Snapshot returns recent fan-outs, oldest first.
func (d *Dispatcher) Snapshot() []HistoryItem {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return append([]HistoryItem(nil), d.history...)
}

func (d *Dispatcher) appendHistory(it HistoryItem) {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.history = append(d.history, it)
	if n := len(d.history); n > historyMax {
		d.history = append(d.history[:0:0], d.history[n-historyMax:]...)
	}
}
