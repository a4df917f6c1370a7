// Package store provides SQLite-backed durable storage for the checkpoint
// scanning client.
//
// The store holds the only durable shared state of the client:
//   - Settings: device identity, operator label, API base override, and the
//     monotonic sequence counter
//   - Outbox: the pending scan-event queue, one JSON payload per row,
//     insertion-ordered
//   - Roster: the last fetched bib -> runner name snapshot (display only)
//
// Outbox rows are stored as opaque JSON documents rather than typed columns
// so that records written by older builds (or imported from a browser
// localStorage export) survive verbatim until the outbox package normalizes
// them. The store never interprets payloads.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
