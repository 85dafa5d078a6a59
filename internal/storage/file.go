package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"doorbot/internal/door"
	logx "doorbot/pkg/logx"
)

const (
	historyFile     = "history.json"
	subscribersFile = "subscribers.json"
)

// fileStore keeps each collection in one JSON array file. Nothing is cached:
// every call re-reads the file, so edits made by the CLI while the bot runs
// are picked up.
type fileStore struct {
	log    logx.Logger
	dir    string
	closed atomic.Bool

	histMu   sync.Mutex
	histPath string

	subsMu   sync.Mutex
	subsPath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = strings.TrimSpace(cfg.Path)
	}
	if dir == "" {
		return nil, errors.New("storage dir is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &fileStore{
		log:      log,
		dir:      dir,
		histPath: filepath.Join(dir, historyFile),
		subsPath: filepath.Join(dir, subscribersFile),
	}
	if _, err := os.Stat(s.subsPath); errors.Is(err, fs.ErrNotExist) {
		if err := writeJSONAtomic(s.subsPath, []int64{}); err != nil {
			return nil, fmt.Errorf("create %s: %w", subscribersFile, err)
		}
	} else if err != nil {
		return nil, err
	}
	log.Debug("file storage opened", logx.String("dir", dir))
	return s, nil
}

func (s *fileStore) History() HistoryStore       { return (*fileHistory)(s) }
func (s *fileStore) Subscribers() SubscriberStore { return (*fileSubscribers)(s) }
func (s *fileStore) Driver() string               { return "file" }

func (s *fileStore) Close() error {
	s.closed.Store(true)
	return nil
}

// ---- history ----

type fileHistory fileStore

// load returns the stored samples. A missing or unparseable file reads as
// empty; the next Append replaces it.
func (h *fileHistory) load() []door.Sample {
	b, err := os.ReadFile(h.histPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.log.Warn("history unreadable; treating as empty", logx.String("path", h.histPath), logx.Err(err))
		}
		return nil
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	var out []door.Sample
	if err := json.Unmarshal(b, &out); err != nil {
		h.log.Warn("history corrupt; treating as empty", logx.String("path", h.histPath), logx.Err(err))
		return nil
	}
	return out
}

func (h *fileHistory) Append(ctx context.Context, sm door.Sample) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.histMu.Lock()
	defer h.histMu.Unlock()

	all := append(h.load(), door.NewSample(sm.Timestamp, door.Normalize(string(sm.Status))))
	if err := writeJSONAtomic(h.histPath, all); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

func (h *fileHistory) Recent(ctx context.Context, n int) ([]door.Sample, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	h.histMu.Lock()
	all := h.load()
	h.histMu.Unlock()
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (h *fileHistory) Count(ctx context.Context) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	h.histMu.Lock()
	defer h.histMu.Unlock()
	return len(h.load()), nil
}

// ---- subscribers ----

type fileSubscribers fileStore

// load reads the subscriber set. Unlike history, a corrupt file is an error:
// rewriting it would silently drop every subscriber.
func (f *fileSubscribers) load() ([]int64, error) {
	b, err := os.ReadFile(f.subsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", subscribersFile, err)
	}
	return dedupIDs(ids), nil
}

func (f *fileSubscribers) Add(ctx context.Context, id int64) (bool, error) {
	if f.closed.Load() {
		return false, ErrClosed
	}
	f.subsMu.Lock()
	defer f.subsMu.Unlock()

	ids, err := f.load()
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}
	ids = append(ids, id)
	if err := writeJSONAtomic(f.subsPath, ids); err != nil {
		return false, fmt.Errorf("write subscribers: %w", err)
	}
	return true, nil
}

func (f *fileSubscribers) Remove(ctx context.Context, id int64) (bool, error) {
	if f.closed.Load() {
		return false, ErrClosed
	}
	f.subsMu.Lock()
	defer f.subsMu.Unlock()

	ids, err := f.load()
	if err != nil {
		return false, err
	}
	i := slices.Index(ids, id)
	if i < 0 {
		return false, nil
	}
	ids = slices.Delete(ids, i, i+1)
	if ids == nil {
		ids = []int64{}
	}
	if err := writeJSONAtomic(f.subsPath, ids); err != nil {
		return false, fmt.Errorf("write subscribers: %w", err)
	}
	return true, nil
}

func (f *fileSubscribers) List(ctx context.Context) ([]int64, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	return f.load()
}

// dedupIDs drops repeated ids, keeping first occurrence order.
func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
