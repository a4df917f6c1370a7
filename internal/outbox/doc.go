// Package outbox implements the durable, deduplicated scan-event queue.
//
// The queue is a deduplicating set keyed by bib number, not a plain log: at
// most one unacknowledged event exists per bib, first occurrence wins. The
// invariant is enforced on every read and every write (normalize-on-load,
// normalize-on-save), so the stored collection can never accumulate
// duplicate or un-normalized entries regardless of entry point.
//
// Admission is gated twice: a short in-memory per-bib lock rejects rapid
// re-scans of the same code before any storage I/O, and the persisted-set
// check rejects bibs that are already queued. Both rejections are routine
// outcomes, reported with the current queue length for operator feedback.
//
// Stored payloads may be in the canonical shape or in one of the legacy
// shapes produced by earlier builds; normalization re-canonicalizes legacy
// entries (preserving their identity when they carry one) and silently drops
// anything with no recoverable bib key. Malformed storage never surfaces as
// an error - local storage is a best-effort cache, not a source of truth.
package outbox
