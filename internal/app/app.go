// Package app wires the door monitor, the notifier and the Telegram bot
// into one supervised process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"doorbot/internal/config"
	"doorbot/internal/door"
	"doorbot/internal/eventbus"
	"doorbot/internal/monitor"
	"doorbot/internal/notifier"
	"doorbot/internal/observability/metrics"
	"doorbot/internal/relay"
	"doorbot/internal/runtime/sdnotify"
	"doorbot/internal/runtime/supervisor"
	"doorbot/internal/storage"
	kit "doorbot/internal/transport"
	telegram "doorbot/internal/transport/telegram/adapter"
	"doorbot/internal/transport/telegram/router"
	logx "doorbot/pkg/logx"

	"github.com/nats-io/nats.go"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	adapter kit.Adapter
	door    doorSettings
	fetcher *door.Fetcher
	mon     *monitor.Monitor
	notif   *notifier.Dispatcher

	metrics *metrics.Metrics
	server  *metrics.Server
	nc      *nats.Conn
	sd      *sdnotify.Notifier

	cmdm *router.CommandManager
	sups *router.SupervisorRegistry

	started time.Time
	updates chan kit.Update
}

// New loads the config at cfgPath and builds the Telegram-backed app.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg, true); err != nil {
		return nil, err
	}

	pollTimeout, err := cfg.Telegram.PollTimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO")
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		APIURL:      cfg.Telegram.APIURL,
	}, bootLog)
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, ad)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter) (*App, error) {
	// Bootstrap with Telegram logging off, set the target, then apply the
	// final config so Apply doesn't warn about a missing target.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID, ok := logTarget(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)

	ds, err := mapDoorConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", store.Driver()))

	bus := eventbus.New()
	fetcher := door.New(ds.URL,
		door.WithTimeout(ds.FetchTimeout),
		door.WithLogger(log.With(logx.String("comp", "door"))),
	)
	mon := monitor.New(fetcher, store.History(),
		monitor.WithSchedule(ds.Schedule),
		monitor.WithLogger(log),
		monitor.WithBus(bus),
	)
	notif := notifier.New(ncfg, store.Subscribers(), ad, log, bus)

	m := metrics.New()
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		door:    ds,
		fetcher: fetcher,
		mon:     mon,
		notif:   notif,
		metrics: m,
		sd:      sdnotify.New(log),
		sups:    router.NewSupervisorRegistry(),
		updates: make(chan kit.Update, 256),
	}
	a.server = metrics.NewServer(mapMetricsConfig(cfg), m, a.healthDetails, log)

	opts := []router.Option{
		router.WithSupervisorRegistry(a.sups),
		router.WithUnknownReply(true),
	}
	if bn, ok := ad.(interface{ BotUsername() string }); ok {
		opts = append(opts, router.WithBotUsername(bn.BotUsername()))
	}
	a.cmdm = router.NewCommandManager(log, ad, cfg.Telegram.OwnerUserIDs, opts...)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, true)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *supervisor.Supervisor }); ok {
		a.sups.Set("telegram.adapter", sp.Supervisor())
	}

	a.cmdm.SetRegistry(a.sup.Context(), a.commands())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.sup.Go("metrics.events", func(c context.Context) error {
		return a.metrics.Run(c, a.bus)
	})
	if err := a.server.Start(); err != nil {
		// the bot is still useful without metrics
		a.log.Error("metrics server not started", logx.Err(err))
	}

	if cfg := a.cfgm.Get(); cfg != nil && cfg.NATS.Enabled {
		nc, err := relay.Connect(mapRelayConfig(cfg), a.log.With(logx.String("comp", "nats")))
		if err != nil {
			return err
		}
		a.nc = nc
		r := relay.New(nc, cfg.NATS.Subject, a.log)
		changes, unsubChanges := a.bus.Subscribe(16)
		a.sup.Go("nats.relay", func(c context.Context) error {
			defer unsubChanges()
			return r.Run(c, changes)
		})
	}

	a.sup.Go("door.monitor", func(c context.Context) error {
		return a.mon.Run(c, a.onChange)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, a.healthy)
	})

	a.sd.Ready()
	a.sd.Status("polling " + a.fetcher.URL())
	a.log.Info("app started", logx.String("url", a.fetcher.URL()))
	return nil
}

// onChange runs on the monitor goroutine; the next poll waits for it.
func (a *App) onChange(ctx context.Context, status door.Status) {
	rep := a.notif.Notify(ctx, status)
	switch {
	case rep.Suppressed:
		a.log.Info("startup status recorded; notification suppressed", logx.String("status", status.String()))
	case rep.Err != nil:
		a.log.Error("notification skipped", logx.String("status", status.String()), logx.Err(rep.Err))
	case rep.Recipients > 0:
		a.log.Info("door change announced",
			logx.String("status", status.String()),
			logx.Int("recipients", rep.Recipients),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
		)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so background loops start unwinding immediately. The
	// monitor finishes its current cycle before returning.
	a.sup.Cancel()

	a.stopStep(ctx, "adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.stopStep(ctx, "metrics", time.Second, func(c context.Context) error { a.server.Stop(c); return nil })
	// Wait for supervised goroutines (monitor, dispatcher, config watch, ...)
	// before closing the stores they write to.
	a.stopStep(ctx, "supervisor", a.door.FetchTimeout+5*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	a.stopStep(ctx, "nats", 2*time.Second, func(c context.Context) error {
		if a.nc == nil {
			return nil
		}
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
			return fmt.Errorf("nats drain: %w", err)
		}
		return nil
	})
	a.stopStep(ctx, "storage", time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
