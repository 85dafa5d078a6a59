package app

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"doorbot/internal/runtime/supervisor"
	"doorbot/internal/transport/telegram/router"
	logx "doorbot/pkg/logx"
)

const greeting = "Hello! I will notify you when the cafe door opens or closes.\n" +
	"Use /subscribe to receive notifications and /unsubscribe to stop.\n" +
	"Use /status to check the current state."

const (
	historyDefault = 10
	historyMax     = 50
)

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Aliases:     []string{"help", "info"},
			Description: "Show what this bot does",
			Handle:      a.cmdStart,
		},
		{
			Name:        "status",
			Description: "Check the door right now",
			Timeout:     a.door.FetchTimeout + 5*time.Second,
			Handle:      a.cmdStatus,
		},
		{
			Name:        "subscribe",
			Description: "Get a message when the door opens or closes",
			Handle:      a.cmdSubscribe,
		},
		{
			Name:        "unsubscribe",
			Description: "Stop door notifications",
			Handle:      a.cmdUnsubscribe,
		},
		{
			Name:        "history",
			Description: "Recent door samples",
			Usage:       "/history [n]",
			Handle:      a.cmdHistory,
		},
		{
			Name:        "health",
			Description: "Bot health",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdHealth,
		},
	}
}

func (a *App) cmdStart(ctx context.Context, req *router.Request) error {
	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\nCommands:\n")
	for _, c := range a.cmdm.Commands() {
		if c.Hidden || c.Access == router.AccessOwnerOnly {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		fmt.Fprintf(&b, "%s - %s\n", usage, c.Description)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	st := a.fetcher.Fetch(ctx)
	return req.Reply(ctx, "Current door status: "+st.String())
}

// Storage errors are logged and answered with the no-op reply.
func (a *App) cmdSubscribe(ctx context.Context, req *router.Request) error {
	added, err := a.store.Subscribers().Add(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("subscribe failed", logx.Err(err))
	}
	if added {
		req.Logger.Info("subscriber added")
		return req.Reply(ctx, "Subscribed to door notifications. You will receive updates.")
	}
	return req.Reply(ctx, "You are already subscribed.")
}

func (a *App) cmdUnsubscribe(ctx context.Context, req *router.Request) error {
	removed, err := a.store.Subscribers().Remove(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("unsubscribe failed", logx.Err(err))
	}
	if removed {
		req.Logger.Info("subscriber removed")
		return req.Reply(ctx, "Unsubscribed. You will no longer receive updates.")
	}
	return req.Reply(ctx, "You were not subscribed.")
}

func (a *App) cmdHistory(ctx context.Context, req *router.Request) error {
	n := historyDefault
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return req.Reply(ctx, "Usage: /history [n]")
		}
		n = min(v, historyMax)
	}
	samples, err := a.store.History().Recent(ctx, n)
	if err != nil {
		req.Logger.Error("history read failed", logx.Err(err))
		return req.Reply(ctx, "History is unavailable right now.")
	}
	if len(samples) == 0 {
		return req.Reply(ctx, "No samples recorded yet.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d samples (UTC):\n", len(samples))
	for _, s := range samples {
		fmt.Fprintf(&b, "%s  %s\n", s.Timestamp.UTC().Format("2006-01-02 15:04:05"), s.Status.Upper())
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (a *App) cmdHealth(ctx context.Context, req *router.Request) error {
	now := time.Now()
	st := a.mon.Stats()

	status := "Running"
	monErr := a.checkMonitor(now)
	if monErr != nil {
		status = "Degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var b strings.Builder
	b.Grow(1024)
	b.WriteString("🏥 Door Bot Health\n")
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Uptime: %s\n", durRel(now.Sub(a.started)))
	fmt.Fprintf(&b, "Endpoint: %s\n", a.fetcher.URL())
	b.WriteString("\n")

	b.WriteString("🚪 Monitor\n")
	fmt.Fprintf(&b, "  • Cycles: %d\n", st.Cycles)
	if st.Panics > 0 {
		fmt.Fprintf(&b, "  • Panics: %d\n", st.Panics)
	}
	if st.LastSample != nil {
		fmt.Fprintf(&b, "  • Last sample: %s (%s ago)\n", st.LastSample.Status.Upper(), durRel(now.Sub(st.LastSample.Timestamp)))
	} else {
		b.WriteString("  • Last sample: none yet\n")
	}
	if monErr != nil {
		fmt.Fprintf(&b, "  • Problem: %s\n", monErr)
	}
	b.WriteString("\n")

	b.WriteString("💾 Storage\n")
	fmt.Fprintf(&b, "  • Driver: %s\n", a.store.Driver())
	if ids, err := a.store.Subscribers().List(ctx); err != nil {
		fmt.Fprintf(&b, "  • Subscribers: error: %s\n", err)
	} else {
		fmt.Fprintf(&b, "  • Subscribers: %d\n", len(ids))
	}
	if n, err := a.store.History().Count(ctx); err != nil {
		fmt.Fprintf(&b, "  • Samples: error: %s\n", err)
	} else {
		fmt.Fprintf(&b, "  • Samples: %d\n", n)
	}
	b.WriteString("\n")

	b.WriteString("📣 Notifications\n")
	if hist := a.notif.Snapshot(); len(hist) > 0 {
		last := hist[len(hist)-1]
		fmt.Fprintf(&b, "  • Last: %q %s ago (%d delivered, %d failed)\n", last.Text, durRel(now.Sub(last.At)), last.Delivered, last.Failed)
	} else {
		b.WriteString("  • Last: none\n")
	}
	fmt.Fprintf(&b, "  • Events dropped: %d\n", a.bus.Dropped())
	b.WriteString("\n")

	b.WriteString("🤖 Runtime\n")
	fmt.Fprintf(&b, "  • Goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "  • Heap: %s\n", fmtBytes(m.HeapInuse))
	b.WriteString("\n")

	b.WriteString("🧵 Supervisors\n")
	writeSupervisors(&b, a.supervisorSnapshots(), now)

	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

// writeSupervisors prints one line per supervisor and an indented line per
// goroutine that restarted, panicked or failed.
func writeSupervisors(b *strings.Builder, snaps map[string]supervisor.Snapshot, now time.Time) {
	names := make([]string, 0, len(snaps))
	for name := range snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		b.WriteString("  • (none)\n")
		return
	}
	for _, name := range names {
		snap := snaps[name]
		fmt.Fprintf(b, "  • %s: %d active, %d started\n", name, snap.Counters.Active, snap.Counters.Started)
		if snap.FirstError != "" {
			fmt.Fprintf(b, "    ⚠ first error: %s\n", snap.FirstError)
		}
		for _, g := range snap.Goroutines {
			if g.Restarts == 0 && g.Panics == 0 && g.LastErr == "" {
				continue
			}
			fmt.Fprintf(b, "    ↻ %s: restarts=%d panics=%d", g.Name, g.Restarts, g.Panics)
			if g.LastErr != "" {
				fmt.Fprintf(b, " last_err=%s", g.LastErr)
			}
			if !g.LastStopAt.IsZero() {
				fmt.Fprintf(b, " (%s ago)", durRel(now.Sub(g.LastStopAt)))
			}
			b.WriteString("\n")
		}
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func fmtBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
