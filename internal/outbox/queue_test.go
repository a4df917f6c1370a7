package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/testutil"
)

var testStart = time.Date(2026, 2, 6, 10, 12, 34, 0, time.FixedZone("JST", 9*3600))

func TestEnqueueMintsCanonicalEvent(t *testing.T) {
	clock := testutil.NewManualClock(testStart)
	q, _ := testutil.NewQueue(t, outbox.Options{Now: clock.Now})
	ctx := context.Background()

	res, err := q.Enqueue(ctx, 21)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Length)
	require.NotNil(t, res.Event)
	assert.Equal(t, 21, res.Event.BibNumber)
	assert.Equal(t, "cp1", res.Event.Station)
	assert.Equal(t, "2026-02-06T10:12:34+09:00", res.Event.ScannedAt)
	assert.NotEmpty(t, res.Event.EventID)
	assert.NotEmpty(t, res.Event.DeviceID)
	assert.Equal(t, "CP1", res.Event.Operator)
}

func TestEnqueueInvalidBib(t *testing.T) {
	q, _ := testutil.NewQueue(t, outbox.Options{})
	ctx := context.Background()

	res, err := q.Enqueue(ctx, 0)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, outbox.ReasonInvalid, res.Reason)

	res, err = q.Enqueue(ctx, -3)
	require.NoError(t, err)
	assert.Equal(t, outbox.ReasonInvalid, res.Reason)
}

func TestEnqueueLockWindow(t *testing.T) {
	clock := testutil.NewManualClock(testStart)
	q, _ := testutil.NewQueue(t, outbox.Options{Now: clock.Now})
	ctx := context.Background()

	res, err := q.Enqueue(ctx, 21)
	require.NoError(t, err)
	assert.True(t, res.OK)

	// Rapid repeat is swallowed before any queue check.
	res, err = q.Enqueue(ctx, 21)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, outbox.ReasonLocked, res.Reason)
	assert.Equal(t, 1, res.Length)

	// A different bib in the same window is unaffected.
	res, err = q.Enqueue(ctx, 22)
	require.NoError(t, err)
	assert.True(t, res.OK)

	// Past the window the persisted-set check takes over.
	clock.Advance(6 * time.Second)
	res, err = q.Enqueue(ctx, 21)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, outbox.ReasonDuplicate, res.Reason)
	assert.Equal(t, 2, res.Length)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoadMintsForLegacyPayloads(t *testing.T) {
	clock := testutil.NewManualClock(testStart)
	q, st := testutil.NewQueue(t, outbox.Options{Now: clock.Now})
	ctx := context.Background()

	// Pre-canonical shapes: a bare number, a camelCase object, free text.
	raws := [][]byte{
		[]byte(`21`),
		[]byte(`{"bibNumber":"7"}`),
		[]byte(`{"input":"bib 042"}`),
	}
	require.NoError(t, st.ReplaceOutbox(ctx, raws))

	events, err := q.Load(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	bibs := []int{events[0].BibNumber, events[1].BibNumber, events[2].BibNumber}
	assert.Equal(t, []int{21, 7, 42}, bibs)

	ids := map[string]bool{}
	for _, ev := range events {
		assert.NotEmpty(t, ev.EventID)
		assert.NotEmpty(t, ev.ScannedAt)
		assert.Equal(t, "cp1", ev.Station)
		ids[ev.EventID] = true
	}
	assert.Len(t, ids, 3, "minted event ids must be distinct")

	// The fixup was written back once and is stable across reloads.
	stored, err := st.ReadOutbox(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	again, err := q.Load(ctx)
	require.NoError(t, err)
	require.Len(t, again, 3)
	for i := range events {
		assert.Equal(t, events[i].EventID, again[i].EventID, "reload must not regenerate identities")
	}

	storedAgain, err := st.ReadOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored, storedAgain)
}

func TestLoadPreservesExistingIdentity(t *testing.T) {
	q, st := testutil.NewQueue(t, outbox.Options{})
	ctx := context.Background()

	raw := []byte(`{"event_id":"dev-1700000000000-4-21","scanned_at":"2026-02-06T09:55:00+09:00","bibNumber":21,"operator":"CP1","device_id":"dev","_api":"https://old.example"}`)
	require.NoError(t, st.ReplaceOutbox(ctx, [][]byte{raw}))

	events, err := q.Load(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "dev-1700000000000-4-21", ev.EventID)
	assert.Equal(t, 21, ev.BibNumber)
	assert.Equal(t, "2026-02-06T09:55:00+09:00", ev.ScannedAt)
	assert.Equal(t, "cp1", ev.Station, "missing station is filled with the default")
	assert.Equal(t, "https://old.example", ev.APIBase, "legacy _api field is carried over")

	// The stored payload is now canonical.
	stored, err := st.ReadOutbox(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	var round outbox.ScanEvent
	require.NoError(t, json.Unmarshal(stored[0], &round))
	assert.Equal(t, ev, round)
}

func TestLoadDropsUnrecoverableAndDuplicates(t *testing.T) {
	q, st := testutil.NewQueue(t, outbox.Options{})
	ctx := context.Background()

	raws := [][]byte{
		[]byte(`{"note":"no bib here"}`),
		[]byte(`{"event_id":"a-1-1-21","scanned_at":"2026-02-06T09:00:00+09:00","bib_number":21,"station":"cp1","device_id":"a","operator":"CP1"}`),
		[]byte(`{"event_id":"b-2-2-21","scanned_at":"2026-02-06T09:01:00+09:00","bib_number":21,"station":"cp1","device_id":"b","operator":"CP1"}`),
		[]byte(`"bogus"`),
	}
	require.NoError(t, st.ReplaceOutbox(ctx, raws))

	events, err := q.Load(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a-1-1-21", events[0].EventID, "first occurrence per bib wins")

	n, err := st.OutboxLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportRaw(t *testing.T) {
	clock := testutil.NewManualClock(testStart)
	q, _ := testutil.NewQueue(t, outbox.Options{Now: clock.Now})
	ctx := context.Background()

	res, err := q.Enqueue(ctx, 21)
	require.NoError(t, err)
	require.True(t, res.OK)

	added, total, err := q.ImportRaw(ctx, []json.RawMessage{
		json.RawMessage(`21`),
		json.RawMessage(`{"bibNumber":22}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added, "existing entry wins over imported duplicate")
	assert.Equal(t, 2, total)

	events, err := q.Load(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, res.Event.EventID, events[0].EventID)
	assert.Equal(t, 22, events[1].BibNumber)
}

func TestClear(t *testing.T) {
	clock := testutil.NewManualClock(testStart)
	q, _ := testutil.NewQueue(t, outbox.Options{Now: clock.Now})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 21)
	require.NoError(t, err)
	clock.Advance(6 * time.Second)
	_, err = q.Enqueue(ctx, 22)
	require.NoError(t, err)

	require.NoError(t, q.Clear(ctx))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
