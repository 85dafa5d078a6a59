// Package storage persists the door history and the subscriber set.
//
// Two backends are available:
//   - "file": history.json and subscribers.json under a data directory,
//     every write replaces the whole file through a temp file and rename
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
package storage
