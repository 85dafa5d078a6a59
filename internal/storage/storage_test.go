package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"doorbot/internal/door"
)

type backend struct {
	name string
	cfg  func(dir string) Config
}

var backends = []backend{
	{name: "file", cfg: func(dir string) Config { return Config{Driver: "file", Dir: dir} }},
	{name: "sqlite", cfg: func(dir string) Config {
		return Config{Driver: "sqlite", Path: filepath.Join(dir, "doorbot.db")}
	}},
}

func openT(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(cfg, nopLog())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSubscribersIdempotent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			subs := openT(t, b.cfg(t.TempDir())).Subscribers()

			if ok, err := subs.Add(ctx, 7); err != nil || !ok {
				t.Fatalf("first Add: ok=%v err=%v", ok, err)
			}
			if ok, err := subs.Add(ctx, 7); err != nil || ok {
				t.Fatalf("second Add: ok=%v err=%v", ok, err)
			}
			ids, err := subs.List(ctx)
			if err != nil || len(ids) != 1 || ids[0] != 7 {
				t.Fatalf("List=%v err=%v", ids, err)
			}
			if ok, err := subs.Remove(ctx, 7); err != nil || !ok {
				t.Fatalf("first Remove: ok=%v err=%v", ok, err)
			}
			if ok, err := subs.Remove(ctx, 7); err != nil || ok {
				t.Fatalf("second Remove: ok=%v err=%v", ok, err)
			}
			ids, err = subs.List(ctx)
			if err != nil || len(ids) != 0 {
				t.Fatalf("List after remove=%v err=%v", ids, err)
			}
		})
	}
}

func TestSubscribersSurviveReopen(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			st, err := Open(b.cfg(dir), nopLog())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			for _, id := range []int64{3, 1, 2} {
				if _, err := st.Subscribers().Add(ctx, id); err != nil {
					t.Fatalf("Add(%d): %v", id, err)
				}
			}
			if _, err := st.Subscribers().Remove(ctx, 1); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			_ = st.Close()

			ids, err := openT(t, b.cfg(dir)).Subscribers().List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(ids) != 2 {
				t.Fatalf("ids=%v", ids)
			}
			got := map[int64]bool{ids[0]: true, ids[1]: true}
			if !got[2] || !got[3] {
				t.Fatalf("ids=%v", ids)
			}
		})
	}
}

func TestHistoryAppendRecentCount(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			hist := openT(t, b.cfg(t.TempDir())).History()
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
			statuses := []door.Status{door.Closed, door.Open, door.Open, door.Unknown}
			for i, s := range statuses {
				if err := hist.Append(ctx, door.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), Status: s}); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			n, err := hist.Count(ctx)
			if err != nil || n != len(statuses) {
				t.Fatalf("Count=%d err=%v", n, err)
			}
			recent, err := hist.Recent(ctx, 2)
			if err != nil || len(recent) != 2 {
				t.Fatalf("Recent=%v err=%v", recent, err)
			}
			if recent[0].Status != door.Open || recent[1].Status != door.Unknown {
				t.Fatalf("Recent order wrong: %+v", recent)
			}
			if recent[1].Timestamp.Location() != time.UTC {
				t.Fatalf("timestamp not UTC: %v", recent[1].Timestamp)
			}
			if !recent[1].Timestamp.Equal(base.Add(3 * time.Minute)) {
				t.Fatalf("timestamp=%v", recent[1].Timestamp)
			}
			all, err := hist.Recent(ctx, 100)
			if err != nil || len(all) != len(statuses) {
				t.Fatalf("Recent(100)=%d err=%v", len(all), err)
			}
		})
	}
}

func TestFileHistoryCorruptReadsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFile), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	hist := openT(t, Config{Driver: "file", Dir: dir}).History()
	if n, err := hist.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count=%d err=%v", n, err)
	}
	if err := hist.Append(ctx, door.NewSample(time.Now(), door.Open)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n, _ := hist.Count(ctx); n != 1 {
		t.Fatalf("Count after append=%d", n)
	}
}

func TestFileReadsLegacyFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	legacy := `[{"timestamp": "2024-01-02T03:04:05.123456+00:00", "status": "closed"}]`
	if err := os.WriteFile(filepath.Join(dir, historyFile), []byte(legacy), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, subscribersFile), []byte("[10, 20, 10]"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := openT(t, Config{Driver: "file", Dir: dir})
	recent, err := st.History().Recent(ctx, 5)
	if err != nil || len(recent) != 1 || recent[0].Status != door.Closed {
		t.Fatalf("Recent=%+v err=%v", recent, err)
	}
	ids, err := st.Subscribers().List(ctx)
	if err != nil || len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
}

func TestFileCreatesEmptySubscribers(t *testing.T) {
	dir := t.TempDir()
	openT(t, Config{Dir: dir})
	b, err := os.ReadFile(filepath.Join(dir, subscribersFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(b); got != "[]\n" {
		t.Fatalf("subscribers.json=%q", got)
	}
}

func TestFileCorruptSubscribersIsError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, subscribersFile), []byte("oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	subs := openT(t, Config{Dir: dir}).Subscribers()
	if _, err := subs.Add(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
	b, _ := os.ReadFile(filepath.Join(dir, subscribersFile))
	if string(b) != "oops" {
		t.Fatalf("corrupt file was overwritten: %q", b)
	}
}

func TestConcurrentAdds(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			subs := openT(t, b.cfg(t.TempDir())).Subscribers()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(id int64) {
					defer wg.Done()
					if _, err := subs.Add(ctx, id%10); err != nil {
						t.Errorf("Add: %v", err)
					}
				}(int64(i))
			}
			wg.Wait()
			ids, err := subs.List(ctx)
			if err != nil || len(ids) != 10 {
				t.Fatalf("ids=%v err=%v", ids, err)
			}
		})
	}
}

func TestClosed(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			st, err := Open(b.cfg(t.TempDir()), nopLog())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			_ = st.Close()
			if _, err := st.Subscribers().List(context.Background()); !errors.Is(err, ErrClosed) {
				t.Fatalf("List after close: %v", err)
			}
			if err := st.History().Append(context.Background(), door.NewSample(time.Now(), door.Open)); !errors.Is(err, ErrClosed) {
				t.Fatalf("Append after close: %v", err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, nopLog()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSQLitePathFromDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	openT(t, Config{Driver: "sqlite", Dir: dir})
	if _, err := os.Stat(filepath.Join(dir, "doorbot.db")); err != nil {
		t.Fatalf("database not created under dir: %v", err)
	}
	if _, err := Open(Config{Driver: "sqlite"}, nopLog()); err == nil {
		t.Fatalf("expected error without path or dir")
	}
}
