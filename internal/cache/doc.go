// Package cache holds the named response stores the interception layer reads
// and writes. A Storage owns a set of named stores (one per purpose and
// version, e.g. "journal-0.2.2" and "journal-0.2.2-api"); each Store maps a
// request key ("GET /app.js") to a full response Snapshot. Two drivers are
// provided: a filesystem driver (one directory per store, temp file + rename
// writes, per-key locks) and a SQLite driver backed by modernc.org/sqlite.
// Snapshots are persisted in HTTP/1.1 wire format so entries stay readable
// with standard tooling. Bounded writes and oldest-first eviction live here
// too, so every strategy shares the same size policy.
package cache
