package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "doorbot/internal/transport"
)

func TestZeroAndNopLoggersAreSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("dropped", String("k", "v"))
	Nop().With(Int("n", 1)).Error("dropped", Err(errors.New("x")))
	if Nop().IsZero() {
		t.Fatalf("Nop should not be zero")
	}
}

func TestWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "DEBUG").With(String("comp", "monitor"))
	l.Warn("fetch failed",
		Int64("chat_id", 42),
		Duration("took", 1500*time.Millisecond),
		Bool("retry", false),
		Err(errors.New("timeout")),
		Err(nil),
	)

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json: %v (%s)", err, buf.String())
	}
	want := map[string]any{
		"level":   "warn",
		"message": "fetch failed",
		"comp":    "monitor",
		"chat_id": float64(42),
		"retry":   false,
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s=%v want %v (%s)", k, m[k], v, buf.String())
		}
	}
	if !strings.Contains(buf.String(), "timeout") {
		t.Fatalf("error missing: %s", buf.String())
	}
	if _, ok := m["caller"].(string); !ok {
		t.Fatalf("caller missing: %s", buf.String())
	}
}

func TestWriterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "WARN")
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("below-level lines written: %s", buf.String())
	}
	l.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("error line missing")
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", " warn ", "WARNING", "error", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q)=false", s)
		}
	}
	for _, s := range []string{"verbose", "fatal", "1"} {
		if ValidLevel(s) {
			t.Fatalf("ValidLevel(%q)=true", s)
		}
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	got := formatTelegramJSON([]byte(`{"level":"warn","time":"x","message":"door fetch failed","url":"https://d","comp":"door"}` + "\n"))
	want := "[WARN] door fetch failed\n- comp=door\n- url=https://d"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := formatTelegramJSON([]byte("not json\n")); got != "not json" {
		t.Fatalf("raw=%q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 12); got != strings.Repeat("a", 9)+"..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

type captureAdapter struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (c *captureAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (c *captureAdapter) Stop(ctx context.Context) error                         { return nil }
func (c *captureAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	return kit.MessageRef{}, nil
}

func TestServiceTelegramSink(t *testing.T) {
	ad := &captureAdapter{}
	svc, log := New(Config{Level: "INFO", Telegram: TelegramConfig{MinLevel: "WARN", RatePerSec: 10}}, ad)
	defer svc.Close()
	svc.SetTelegramTarget(-100123, 7)
	svc.Apply(Config{Level: "INFO", Telegram: TelegramConfig{Enabled: true, MinLevel: "WARN", RatePerSec: 10}})

	log.Info("not forwarded")
	log.With(String("comp", "notifier")).Error("send failed", Int64("chat_id", 5))

	deadline := time.Now().Add(2 * time.Second)
	for {
		ad.mu.Lock()
		n := len(ad.sent)
		ad.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("nothing forwarded to telegram")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent) != 1 {
		t.Fatalf("sent=%q", ad.sent)
	}
	if !strings.HasPrefix(ad.sent[0], "[ERROR] send failed") || !strings.Contains(ad.sent[0], "- comp=notifier") {
		t.Fatalf("msg=%q", ad.sent[0])
	}
	if ad.to[0] != (kit.ChatTarget{ChatID: -100123, ThreadID: 7}) {
		t.Fatalf("to=%+v", ad.to[0])
	}
}
