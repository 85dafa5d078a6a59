package app

import (
	"context"
	"strings"

	"doorbot/internal/config"
	logx "doorbot/pkg/logx"
)

// reloadLoop applies committed config reloads. Logging, owners, notifier
// and metrics change live; everything else needs a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts: keep only the latest config
		drain:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.sd.Reloading()
			a.applyConfig(ctx, last, next)
			a.sd.Ready()
			last = next
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	// target first so Apply doesn't warn when Telegram logging is enabled
	if chatID, ok := logTarget(next); ok {
		a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLoggingConfig(next))

	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if err := a.server.Reconfigure(ctx, mapMetricsConfig(next)); err != nil {
		a.log.Warn("metrics reconfigure failed", logx.Err(err))
	}

	if sections := restartSections(prev, next); len(sections) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(sections, ",")))
	}
	a.log.Info("config applied")
}

// restartSections lists changed sections that are only read at startup.
func restartSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	if prev.Telegram.Token != next.Telegram.Token || prev.Telegram.PollTimeout != next.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if prev.Door != next.Door {
		out = append(out, "door")
	}
	if prev.Storage != next.Storage {
		out = append(out, "storage")
	}
	if prev.NATS != next.NATS {
		out = append(out, "nats")
	}
	if prev.Notifier.NotifyOnStartup != next.Notifier.NotifyOnStartup {
		out = append(out, "notifier.notify_on_startup")
	}
	return out
}
