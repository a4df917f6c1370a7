package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/digitide-user/mst26-cp1/internal/device"
	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/store"
)

// NewQueue builds an outbox queue over a fresh temp-dir SQLite store with a
// freshly minted identity. The store is returned as well so tests can inject
// raw payloads or inspect settings directly. Cleanup is registered on t.
func NewQueue(t *testing.T, opts outbox.Options) (*outbox.Queue, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	id, err := device.LoadOrCreate(context.Background(), st, "", "CP1")
	if err != nil {
		t.Fatalf("LoadOrCreate() failed: %v", err)
	}

	return outbox.New(st, id, opts), st
}
