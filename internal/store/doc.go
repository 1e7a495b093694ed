// Package store provides durable, append-only storage for ledger blocks.
//
// Two BlockLog implementations share one contract:
//   - Store: SQLite, one row per block, plus the bindings and anchors tables
//   - FileLog: newline-delimited canonical JSON records
//
// # Durability
//
// Append returns only after the record is on stable storage: the SQLite
// backend runs with synchronous=FULL, the file backend flushes and fsyncs
// every record. A failed Append is never acknowledged.
//
// # Ordering
//
// Append rejects a block whose index is not exactly the current count, so
// the log can never contain gaps or duplicates. Meta is recomputed from the
// last stored record on every call and never cached across restarts.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: fsync on every commit
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
