// Package roster maintains the display-only bib -> runner name snapshot.
//
// The snapshot annotates rendering and nothing else: queue and sync logic
// never consult it, and a failed refresh leaves the previous snapshot
// untouched.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/digitide-user/mst26-cp1/internal/bib"
	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/store"
)

const excerptLen = 200

// Snapshot describes the roster state after a refresh.
type Snapshot struct {
	Count       int    `json:"count"`
	GeneratedAt string `json:"generated_at"`
	RefreshedAt string `json:"refreshed_at"`
}

// Cache is the local roster snapshot, persisted in the store.
type Cache struct {
	st      *store.Store
	client  *http.Client
	apiBase string
	now     func() time.Time
}

// Options configures a Cache.
type Options struct {
	APIBase string
	Client  *http.Client // defaults to a 15s-timeout client
	Now     func() time.Time
}

// New creates a roster cache over the given store.
func New(st *store.Store, opts Options) *Cache {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{st: st, client: client, apiBase: opts.APIBase, now: now}
}

// Refresh fetches the roster from the remote endpoint and replaces the local
// snapshot. On any failure the existing snapshot is left untouched and the
// error is returned for display.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/roster", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: %w", err)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Snapshot{}, fmt.Errorf("roster refresh: HTTP %d: %s", httpResp.StatusCode, trim(body))
	}

	var doc struct {
		Roster      []json.RawMessage `json:"roster"`
		GeneratedAt string            `json:"generated_at"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: unparseable response: %s", trim(body))
	}

	entries := parseEntries(doc.Roster)

	if err := c.st.ReplaceRoster(ctx, entries); err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: %w", err)
	}

	refreshedAt := outbox.FormatLocal(c.now())
	if err := c.st.SetSetting(ctx, store.KeyRosterRefreshedAt, refreshedAt); err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: %w", err)
	}
	generatedAt := doc.GeneratedAt
	if generatedAt == "" {
		generatedAt = "(unknown)"
	}
	if err := c.st.SetSetting(ctx, store.KeyRosterGeneratedAt, generatedAt); err != nil {
		return Snapshot{}, fmt.Errorf("roster refresh: %w", err)
	}

	return Snapshot{Count: len(entries), GeneratedAt: generatedAt, RefreshedAt: refreshedAt}, nil
}

// Lookup returns the display name for a bib, or "". Never fails: a missing
// snapshot or store error just means no annotation.
func (c *Cache) Lookup(ctx context.Context, bibNumber int) string {
	name, err := c.st.RosterName(ctx, bibNumber)
	if err != nil {
		return ""
	}
	return name
}

// RefreshedAt returns when the snapshot was last replaced, or "".
func (c *Cache) RefreshedAt(ctx context.Context) string {
	at, err := c.st.GetSetting(ctx, store.KeyRosterRefreshedAt)
	if err != nil {
		return ""
	}
	return at
}

// parseEntries tolerates the field-name drift of the roster feed: the bib
// may arrive as bib_number/bibNumber/bib and the name as
// name/runnerName/fullName. Entries without a positive bib are skipped.
// Names are trimmed and NFC-normalized so lookups render consistently
// regardless of how the source sheet composed its characters.
func parseEntries(raws []json.RawMessage) []store.RosterEntry {
	entries := make([]store.RosterEntry, 0, len(raws))
	seen := make(map[int]bool, len(raws))

	for _, raw := range raws {
		bibNum, ok := bib.KeyFromRaw(raw)
		if !ok || seen[bibNum] {
			continue
		}

		var aux struct {
			Name       string `json:"name"`
			RunnerName string `json:"runnerName"`
			FullName   string `json:"fullName"`
		}
		if err := json.Unmarshal(raw, &aux); err != nil {
			continue
		}

		name := aux.Name
		if name == "" {
			name = aux.RunnerName
		}
		if name == "" {
			name = aux.FullName
		}
		name = norm.NFC.String(strings.TrimSpace(name))

		seen[bibNum] = true
		entries = append(entries, store.RosterEntry{BibNumber: bibNum, Name: name})
	}

	return entries
}

func trim(body []byte) string {
	s := string(body)
	if len(s) > excerptLen {
		s = s[:excerptLen]
	}
	return s
}
