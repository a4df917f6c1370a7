// Package syncer drains the outbox queue against the remote collection
// endpoint in bounded batches.
//
// Delivery is at-least-once: a timed-out or failed request leaves the queue
// untouched and the whole batch is resent on the next run. The server
// deduplicates by event_id and reports each id back as either accepted
// (newly recorded) or ignored (already recorded); both terminate local
// queueing, and the pruned queue is persisted after every batch so partial
// progress survives an interruption.
//
// Two guards keep a misbehaving server from turning the drain loop into a
// retry storm: a fixed pass bound, and an abort when a well-formed response
// removes zero events from the queue (a server contract mismatch, surfaced
// loudly instead of looping forever).
package syncer
