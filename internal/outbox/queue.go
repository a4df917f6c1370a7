package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/digitide-user/mst26-cp1/internal/bib"
	"github.com/digitide-user/mst26-cp1/internal/device"
	"github.com/digitide-user/mst26-cp1/internal/store"
)

// DefaultStation identifies this checkpoint in every minted event.
const DefaultStation = "cp1"

// Reason classifies a rejected enqueue attempt.
type Reason string

const (
	// ReasonInvalid - the input did not yield a positive bib number.
	ReasonInvalid Reason = "invalid"
	// ReasonLocked - the bib was admitted within the lock window; no queue
	// I/O happened.
	ReasonLocked Reason = "locked"
	// ReasonDuplicate - an unacknowledged event for this bib is already
	// queued.
	ReasonDuplicate Reason = "duplicate"
)

// Result reports the outcome of an enqueue attempt. Rejections are routine,
// not errors: Length carries the current queue size either way so callers
// can render feedback.
type Result struct {
	OK     bool       `json:"ok"`
	Reason Reason     `json:"reason,omitempty"`
	Length int        `json:"length"`
	Event  *ScanEvent `json:"event,omitempty"`
}

// Options configures a Queue.
type Options struct {
	// APIBase is recorded on minted events (diagnostic only).
	APIBase string
	// Station overrides DefaultStation.
	Station string
	// LockWindow overrides DefaultLockWindow.
	LockWindow time.Duration
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Queue is the durable outbox of unacknowledged scan events.
type Queue struct {
	st      *store.Store
	id      *device.Identity
	guard   *admissionGuard
	apiBase string
	station string
	now     func() time.Time
}

// New creates a queue over the given store and identity.
func New(st *store.Store, id *device.Identity, opts Options) *Queue {
	station := opts.Station
	if station == "" {
		station = DefaultStation
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		st:      st,
		id:      id,
		guard:   newAdmissionGuard(opts.LockWindow),
		apiBase: opts.APIBase,
		station: station,
		now:     now,
	}
}

// Load reads the persisted queue, normalizing and deduplicating it. If
// normalization changed the stored representation, storage is rewritten once
// so the fixup is stable across reloads.
func (q *Queue) Load(ctx context.Context) ([]ScanEvent, error) {
	raws, err := q.st.ReadOutbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	events, changed, err := q.normalize(ctx, raws)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	if changed {
		if err := q.persist(ctx, events); err != nil {
			return nil, fmt.Errorf("load queue: rewrite: %w", err)
		}
	}

	return events, nil
}

// Save normalizes, deduplicates, and persists the given events, returning
// the collection as stored. Enforcing the normalize pass on write as well as
// read means the queue can never hold duplicate-by-bib or un-normalized
// entries regardless of entry point.
func (q *Queue) Save(ctx context.Context, events []ScanEvent) ([]ScanEvent, error) {
	raws := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("save queue: marshal: %w", err)
		}
		raws = append(raws, b)
	}

	normalized, _, err := q.normalize(ctx, raws)
	if err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}

	if err := q.persist(ctx, normalized); err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}

	return normalized, nil
}

// Enqueue records a scan for the given bib.
//
// The gate has two layers: the in-memory admission lock (rejects rapid
// repeats within the lock window, before any storage I/O) and the
// persisted-set check (rejects bibs already queued). Only after both pass is
// a new event minted, appended, and persisted.
func (q *Queue) Enqueue(ctx context.Context, bibNumber int) (Result, error) {
	if bibNumber <= 0 {
		return Result{Reason: ReasonInvalid}, nil
	}

	if !q.guard.admit(bibNumber, q.now()) {
		events, err := q.Load(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Reason: ReasonLocked, Length: len(events)}, nil
	}

	events, err := q.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	for _, ev := range events {
		if ev.BibNumber == bibNumber {
			return Result{Reason: ReasonDuplicate, Length: len(events)}, nil
		}
	}

	minted, err := q.mint(ctx, bibNumber)
	if err != nil {
		return Result{}, err
	}

	saved, err := q.Save(ctx, append(events, minted))
	if err != nil {
		return Result{}, err
	}

	return Result{OK: true, Length: len(saved), Event: &minted}, nil
}

// Len returns the number of unacknowledged events, after normalization.
func (q *Queue) Len(ctx context.Context) (int, error) {
	events, err := q.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// Clear empties the queue unconditionally. Callers are responsible for
// confirming intent with the operator first.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.st.ReplaceOutbox(ctx, nil); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// ImportRaw merges externally sourced payloads (e.g. a browser localStorage
// export) into the queue through the same normalize+dedupe pass as every
// other write. Existing entries win over imported duplicates. Returns how
// many events were added and the resulting queue length.
func (q *Queue) ImportRaw(ctx context.Context, raws []json.RawMessage) (added, total int, err error) {
	existing, err := q.Load(ctx)
	if err != nil {
		return 0, 0, err
	}

	combined := make([]json.RawMessage, 0, len(existing)+len(raws))
	for _, ev := range existing {
		b, err := json.Marshal(ev)
		if err != nil {
			return 0, 0, fmt.Errorf("import: marshal existing: %w", err)
		}
		combined = append(combined, b)
	}
	combined = append(combined, raws...)

	events, _, err := q.normalize(ctx, combined)
	if err != nil {
		return 0, 0, fmt.Errorf("import: %w", err)
	}

	if err := q.persist(ctx, events); err != nil {
		return 0, 0, fmt.Errorf("import: %w", err)
	}

	return len(events) - len(existing), len(events), nil
}

// normalize converts raw stored payloads into canonical events: entries with
// no recoverable bib key are dropped, the first occurrence per bib wins, and
// legacy-shaped entries are re-canonicalized. Entries that already carry a
// full identity keep it - re-canonicalization never regenerates identities
// for valid events, only fills in the canonical field layout.
//
// The changed result reports whether the canonical form differs from the
// stored bytes, i.e. whether a rewrite is needed to make the fixup stick.
func (q *Queue) normalize(ctx context.Context, raws []json.RawMessage) ([]ScanEvent, bool, error) {
	events := []ScanEvent{}
	seen := make(map[int]bool, len(raws))
	changed := false

	for _, raw := range raws {
		key, ok := bib.KeyFromRaw(raw)
		if !ok || seen[key] {
			// Unrecoverable or duplicate-by-bib: drop.
			changed = true
			continue
		}
		seen[key] = true

		ev, hasIdentity := decodeStored(raw)
		if !hasIdentity {
			minted, err := q.mint(ctx, key)
			if err != nil {
				return nil, false, err
			}
			events = append(events, minted)
			changed = true
			continue
		}

		ev.BibNumber = key
		if ev.Station == "" {
			ev.Station = q.station
		}

		canon, err := json.Marshal(ev)
		if err != nil {
			return nil, false, fmt.Errorf("normalize: marshal: %w", err)
		}
		var compact bytes.Buffer
		if json.Compact(&compact, raw) != nil || !bytes.Equal(canon, compact.Bytes()) {
			changed = true
		}

		events = append(events, ev)
	}

	return events, changed, nil
}

// mint creates a fully populated canonical event for a bib, consuming
// exactly one sequence number.
func (q *Queue) mint(ctx context.Context, bibNumber int) (ScanEvent, error) {
	now := q.now()
	seq, err := q.id.NextSeq(ctx)
	if err != nil {
		return ScanEvent{}, fmt.Errorf("mint event: %w", err)
	}

	return ScanEvent{
		EventID:   fmt.Sprintf("%s-%d-%d-%d", q.id.DeviceID, now.UnixMilli(), seq, bibNumber),
		Station:   q.station,
		BibNumber: bibNumber,
		ScannedAt: FormatLocal(now),
		DeviceID:  q.id.DeviceID,
		Operator:  q.id.Operator,
		APIBase:   q.apiBase,
	}, nil
}

func (q *Queue) persist(ctx context.Context, events []ScanEvent) error {
	payloads := make([][]byte, 0, len(events))
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("persist queue: marshal: %w", err)
		}
		payloads = append(payloads, b)
	}
	return q.st.ReplaceOutbox(ctx, payloads)
}
