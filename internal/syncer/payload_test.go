package syncer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/syncer"
	"github.com/digitide-user/mst26-cp1/internal/testutil"
)

// TestBatchPayloadShape pins the wire format of a sync batch. The server
// contract depends on these exact field names, and api_base must never leak
// into the payload.
func TestBatchPayloadShape(t *testing.T) {
	q, _ := testutil.NewQueue(t, outbox.Options{})
	ctx := context.Background()

	events := []outbox.ScanEvent{
		{
			EventID:   "dev-1700000000000-1-21",
			Station:   "cp1",
			BibNumber: 21,
			ScannedAt: "2026-02-06T10:12:34+09:00",
			DeviceID:  "dev",
			Operator:  "CP1",
			APIBase:   "https://internal.example",
		},
		{
			EventID:   "dev-1700000000000-2-22",
			Station:   "cp1",
			BibNumber: 22,
			ScannedAt: "2026-02-06T10:12:35+09:00",
			DeviceID:  "dev",
			Operator:  "CP1",
		},
	}
	_, err := q.Save(ctx, events)
	require.NoError(t, err)

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		require.NoError(t, readErr)
		captured = body
		json.NewEncoder(w).Encode(map[string][]string{
			"accepted_event_ids": {"dev-1700000000000-1-21", "dev-1700000000000-2-22"},
			"ignored_event_ids":  {},
		})
	}))
	defer srv.Close()

	e := syncer.New(q, syncer.Options{APIBase: srv.URL})
	_, err = e.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, captured)

	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, captured, "", "  "))
	pretty.WriteByte('\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "scan_batch", pretty.Bytes())
}
