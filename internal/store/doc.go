// Package store provides SQLite-backed durable storage for fuzz corpora.
//
// The store keeps four tables:
//   - Grammars: compiled grammar specs keyed by content hash
//   - Runs: fuzz campaigns against one grammar and start rule
//   - Entries: entropy inputs with the string (or error code) they derive
//   - Findings: entries an oracle rejected, at most one per run and entry
//
// # Identity and Ordering
//
// Entry IDs are content-addressed (ir.EntryID) over grammar hash, start rule,
// entropy and ceiling, so the same input found by two runs is stored once.
// All ordering uses seq INTEGER (logical clock), never timestamps, and every
// list query ends in ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
