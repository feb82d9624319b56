// Package storage persists the dispatch audit log: one record per broadcast
// fan-out or on-demand reply. Forecast data itself is never stored.
//
// Drivers:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
//
// An empty driver or "none" disables storage.
package storage
