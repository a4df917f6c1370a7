package outbox

import (
	"encoding/json"
	"time"

	"github.com/digitide-user/mst26-cp1/internal/bib"
)

// TimeLayout formats timestamps with the local UTC offset preserved,
// e.g. "2026-02-06T10:12:34+09:00". The originating timezone is kept
// deliberately - it is a venue-local display decision, so timestamps are
// never normalized to UTC.
const TimeLayout = "2006-01-02T15:04:05-07:00"

// FormatLocal renders a timestamp in the queue's wire format.
func FormatLocal(t time.Time) string {
	return t.Format(TimeLayout)
}

// ScanEvent is the unit of queued work: one locally recorded, not yet
// server-acknowledged bib scan.
//
// EventID is globally unique, derived from (device, wall-clock millis,
// sequence, bib), and doubles as the server-side idempotency key and the
// local removal key on acknowledgment. It is never reused.
//
// APIBase records which endpoint the event was created against. Diagnostic
// only: it is persisted but stripped from the sync payload.
type ScanEvent struct {
	EventID   string `json:"event_id"`
	Station   string `json:"station"`
	BibNumber int    `json:"bib_number"`
	ScannedAt string `json:"scanned_at"`
	DeviceID  string `json:"device_id"`
	Operator  string `json:"operator"`
	APIBase   string `json:"api_base,omitempty"`
}

// decodeStored interprets a stored payload as a scan event, tolerating the
// legacy field names of earlier builds (bibNumber/bib for the bib value,
// _api for the endpoint). Returns the event and whether the payload already
// carried a full identity (event_id + scanned_at + positive bib) - in which
// case re-canonicalization must keep that identity rather than mint a new
// one.
func decodeStored(raw json.RawMessage) (ScanEvent, bool) {
	var aux struct {
		EventID   string          `json:"event_id"`
		Station   string          `json:"station"`
		BibNumber json.RawMessage `json:"bib_number"`
		BibCamel  json.RawMessage `json:"bibNumber"`
		Bib       json.RawMessage `json:"bib"`
		ScannedAt string          `json:"scanned_at"`
		DeviceID  string          `json:"device_id"`
		Operator  string          `json:"operator"`
		APIBase   string          `json:"api_base"`
		APILegacy string          `json:"_api"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return ScanEvent{}, false
	}

	ev := ScanEvent{
		EventID:   aux.EventID,
		Station:   aux.Station,
		ScannedAt: aux.ScannedAt,
		DeviceID:  aux.DeviceID,
		Operator:  aux.Operator,
		APIBase:   aux.APIBase,
	}
	if ev.APIBase == "" {
		ev.APIBase = aux.APILegacy
	}

	for _, field := range []json.RawMessage{aux.BibNumber, aux.BibCamel, aux.Bib} {
		if len(field) == 0 {
			continue
		}
		if n, ok := bib.KeyFromRaw(field); ok {
			ev.BibNumber = n
			break
		}
	}

	hasIdentity := ev.EventID != "" && ev.ScannedAt != "" && ev.BibNumber > 0
	return ev, hasIdentity
}
