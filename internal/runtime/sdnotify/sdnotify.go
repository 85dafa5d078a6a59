// Package sdnotify reports readiness and liveness to systemd. Outside a
// systemd unit (no NOTIFY_SOCKET) every call is a no-op.
package sdnotify

import (
	"context"
	"time"

	logx "doorbot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type Notifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)
	// watchdogInterval returns 0 when the unit has no WatchdogSec.
	watchdogInterval func() (time.Duration, error)
}

func New(log logx.Logger) *Notifier {
	return &Notifier{
		log: log.With(logx.String("comp", "sdnotify")),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdogInterval: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() {
	n.send(daemon.SdNotifyReloading)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// Watchdog pings systemd at half the configured WatchdogSec while healthy
// reports true. A stuck monitor therefore stops the pings and systemd
// restarts the unit. Returns immediately when no watchdog is configured.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) error {
	iv, err := n.watchdogInterval()
	if err != nil {
		n.log.Warn("watchdog config invalid", logx.Err(err))
		return nil
	}
	if iv <= 0 {
		return nil
	}
	tick := time.NewTicker(iv / 2)
	defer tick.Stop()
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", iv))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if healthy != nil && !healthy() {
				n.log.Warn("skipping watchdog ping; monitor unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
