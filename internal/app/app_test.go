package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"doorbot/internal/config"
	"doorbot/internal/runtime/supervisor"
	kit "doorbot/internal/transport"
)

type sentMsg struct {
	ChatID int64
	Text   string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }
func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{ChatID: to.ChatID, Text: text})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

// waitFor blocks until a sent message satisfies match and returns it.
func (f *fakeAdapter) waitFor(t *testing.T, match func(sentMsg) bool) sentMsg {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		f.mu.Lock()
		for _, m := range f.sent {
			if match(m) {
				f.mu.Unlock()
				return m
			}
		}
		got := append([]sentMsg(nil), f.sent...)
		f.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for message; sent=%+v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeAdapter) count(match func(sentMsg) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if match(m) {
			n++
		}
	}
	return n
}

func textIs(chatID int64, text string) func(sentMsg) bool {
	return func(m sentMsg) bool { return m.ChatID == chatID && m.Text == text }
}

func textHas(chatID int64, sub string) func(sentMsg) bool {
	return func(m sentMsg) bool { return m.ChatID == chatID && strings.Contains(m.Text, sub) }
}

type doorServer struct {
	status atomic.Value
	*httptest.Server
}

func newDoorServer(t *testing.T, initial string) *doorServer {
	t.Helper()
	d := &doorServer{}
	d.status.Store(initial)
	d.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"status":%q}`, d.status.Load().(string))
	}))
	t.Cleanup(d.Close)
	return d
}

const owner = int64(7)

func startTestApp(t *testing.T, doorURL string) (*App, *fakeAdapter) {
	t.Helper()
	cfg := config.Default()
	cfg.Telegram.Token = "test"
	cfg.Telegram.OwnerUserIDs = []int64{owner}
	cfg.Logging = config.LoggingConfig{Level: "ERROR"}
	cfg.Door.URL = doorURL
	cfg.Door.PollInterval = "20ms"
	cfg.Door.FetchTimeout = "2s"
	cfg.Storage.Dir = t.TempDir()

	cfgm := config.NewConfigManager("")
	cfgm.Commit(cfg)
	fa := &fakeAdapter{}
	a, err := newApp(cfgm, cfg, fa)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopUnknown)
	})
	return a, fa
}

func send(a *App, from int64, text string) {
	a.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, FromID: from, Text: text}}
}

func waitCycles(t *testing.T, a *App, n uint64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for a.mon.Stats().Cycles < n {
		if time.Now().After(deadline) {
			t.Fatalf("monitor ran %d cycles, want %d", a.mon.Stats().Cycles, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeAndNotifyOnChange(t *testing.T) {
	door := newDoorServer(t, "closed")
	a, fa := startTestApp(t, door.URL)

	send(a, 42, "/subscribe")
	fa.waitFor(t, textIs(42, "Subscribed to door notifications. You will receive updates."))
	send(a, 42, "/subscribe")
	fa.waitFor(t, textIs(42, "You are already subscribed."))

	// the first observation after start is never announced
	waitCycles(t, a, 3)
	if n := fa.count(textHas(42, "Cafe door is now")); n != 0 {
		t.Fatalf("startup status was announced")
	}

	door.status.Store("open")
	fa.waitFor(t, textIs(42, "Cafe door is now: OPEN"))

	// every cycle is recorded: a run of CLOSED followed by OPEN
	samples, err := a.store.History().Recent(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(samples) < 4 || samples[0].Status.String() != "closed" || samples[len(samples)-1].Status.String() != "open" {
		t.Fatalf("history=%v", samples)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i-1].Status.String() == "open" && samples[i].Status.String() != "open" {
			t.Fatalf("history not closed-then-open: %v", samples)
		}
	}

	// steady state: no repeat announcements
	before := a.mon.Stats().Cycles
	waitCycles(t, a, before+3)
	if n := fa.count(textIs(42, "Cafe door is now: OPEN")); n != 1 {
		t.Fatalf("OPEN announced %d times", n)
	}

	door.status.Store("geschlossen")
	fa.waitFor(t, textIs(42, "Cafe door is now: CLOSED"))

	send(a, 42, "/unsubscribe")
	fa.waitFor(t, textIs(42, "Unsubscribed. You will no longer receive updates."))
	send(a, 42, "/unsubscribe")
	fa.waitFor(t, textIs(42, "You were not subscribed."))

	door.status.Store("open")
	before = a.mon.Stats().Cycles
	waitCycles(t, a, before+3)
	if n := fa.count(textIs(42, "Cafe door is now: OPEN")); n != 1 {
		t.Fatalf("unsubscribed user was notified")
	}
}

func TestStatusAndHistoryCommands(t *testing.T) {
	door := newDoorServer(t, "Offen")
	a, fa := startTestApp(t, door.URL)
	waitCycles(t, a, 2)

	send(a, 5, "/status")
	fa.waitFor(t, textIs(5, "Current door status: open"))

	door.status.Store("ajar")
	send(a, 5, "/status")
	fa.waitFor(t, textIs(5, "Current door status: unknown"))

	send(a, 5, "/history 1")
	m := fa.waitFor(t, textHas(5, "Last 1 samples"))
	if strings.Count(m.Text, "\n") != 1 {
		t.Fatalf("history reply=%q", m.Text)
	}

	send(a, 5, "/history abc")
	fa.waitFor(t, textIs(5, "Usage: /history [n]"))
}

func TestStartListsPublicCommands(t *testing.T) {
	door := newDoorServer(t, "closed")
	a, fa := startTestApp(t, door.URL)

	for _, cmd := range []string{"/start", "/help", "/info"} {
		send(a, 9, cmd)
	}
	deadline := time.Now().Add(3 * time.Second)
	for fa.count(textHas(9, greeting)) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("greeting not sent for every alias")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m := fa.waitFor(t, textHas(9, greeting))
	if !strings.Contains(m.Text, "/history [n] - Recent door samples") {
		t.Fatalf("command list missing history: %q", m.Text)
	}
	if strings.Contains(m.Text, "/health") {
		t.Fatalf("owner command listed: %q", m.Text)
	}
}

func TestHealthIsOwnerOnly(t *testing.T) {
	door := newDoorServer(t, "closed")
	a, fa := startTestApp(t, door.URL)
	waitCycles(t, a, 1)

	send(a, 99, "/health")
	fa.waitFor(t, textIs(99, "unauthorized"))

	send(a, owner, "/health")
	m := fa.waitFor(t, textHas(owner, "Door Bot Health"))
	for _, want := range []string{"Status: Running", "Driver: file", "Last sample: CLOSED"} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("health missing %q: %q", want, m.Text)
		}
	}
}

func TestHealthShowsSupervisorRestarts(t *testing.T) {
	door := newDoorServer(t, "closed")
	a, fa := startTestApp(t, door.URL)
	waitCycles(t, a, 1)

	sup := supervisor.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	var runs atomic.Int32
	sup.GoRestart("worker", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	}, supervisor.WithRestartBackoff(time.Millisecond, time.Millisecond))
	a.sups.Set("test", sup)

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("worker was not restarted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	send(a, owner, "/health")
	m := fa.waitFor(t, textHas(owner, "Supervisors"))
	for _, want := range []string{"test: ", "worker: restarts=1", "last_err=worker: boom"} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("health missing %q: %q", want, m.Text)
		}
	}

	details, _ := a.healthDetails()
	snaps, ok := details["supervisors"].(map[string]supervisor.Snapshot)
	if !ok {
		t.Fatalf("details[supervisors]=%T", details["supervisors"])
	}
	if _, ok := snaps["app"]; !ok {
		t.Fatalf("app supervisor missing: %v", snaps)
	}
	var found bool
	for _, g := range snaps["test"].Goroutines {
		if g.Name == "worker" {
			found = g.Restarts == 1 && g.LastErr == "worker: boom"
		}
	}
	if !found {
		t.Fatalf("worker stats=%+v", snaps["test"].Goroutines)
	}
}

func TestCheckMonitor(t *testing.T) {
	door := newDoorServer(t, "closed")
	a, _ := startTestApp(t, door.URL)
	waitCycles(t, a, 1)

	if err := a.checkMonitor(time.Now()); err != nil {
		t.Fatalf("fresh monitor unhealthy: %v", err)
	}
	if err := a.checkMonitor(time.Now().Add(time.Hour)); err == nil {
		t.Fatalf("stale monitor reported healthy")
	}
	details, err := a.healthDetails()
	if err != nil {
		t.Fatalf("healthDetails: %v", err)
	}
	if details["last_status"] != "closed" || details["storage"] != "file" {
		t.Fatalf("details=%v", details)
	}
}

func TestRestartSections(t *testing.T) {
	base := config.Default()
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"none", func(c *config.Config) { c.Logging.Level = "DEBUG" }, ""},
		{"door", func(c *config.Config) { c.Door.PollInterval = "30s" }, "door"},
		{"token", func(c *config.Config) { c.Telegram.Token = "other" }, "telegram"},
		{"storage", func(c *config.Config) { c.Storage.Driver = "sqlite" }, "storage"},
		{"nats", func(c *config.Config) { c.NATS.Enabled = true }, "nats"},
		{"notifier rate is live", func(c *config.Config) { c.Notifier.RatePerSec = 5 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := *base
			tt.mutate(&next)
			got := strings.Join(restartSections(base, &next), ",")
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: "SQLite", Path: "/tmp/x.db", BusyTimeout: "3s"}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if sc.Driver != "sqlite" || sc.Path != "/tmp/x.db" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("sc=%+v", sc)
	}
	cfg.Storage.Driver = "redis"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestDurRel(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Second:                "5s",
		90 * time.Second:               "1m30s",
		2*time.Hour + 3*time.Minute:    "2h3m",
		-(2*time.Hour + 3*time.Minute): "2h3m",
	}
	for d, want := range tests {
		if got := durRel(d); got != want {
			t.Fatalf("durRel(%s)=%q want %q", d, got, want)
		}
	}
}
