package storage

import (
	"context"
	"errors"
	"time"

	"doorbot/internal/door"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file" (default): Dir holds history.json and subscribers.json
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Dir         string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// HistoryStore is the append-only log of poll samples.
type HistoryStore interface {
	Append(ctx context.Context, s door.Sample) error
	// Recent returns up to n samples, oldest first.
	Recent(ctx context.Context, n int) ([]door.Sample, error)
	Count(ctx context.Context) (int, error)
}

// SubscriberStore is the durable set of chat ids receiving notifications.
type SubscriberStore interface {
	// Add reports whether id was newly added.
	Add(ctx context.Context, id int64) (bool, error)
	// Remove reports whether id was present.
	Remove(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]int64, error)
}

// Store bundles both stores behind one backend.
type Store interface {
	History() HistoryStore
	Subscribers() SubscriberStore
	Driver() string
	Close() error
}
