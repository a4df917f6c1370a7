// Package relay implements a minimal stand-in for the remote collection
// endpoint: POST /scan_batch with event_id deduplication and GET /roster
// served from a YAML seed file.
//
// It exists for two reasons: running a venue-local fallback collector when
// the upstream proxy is unreachable, and giving the sync engine a faithful
// counterpart to integrate against in tests. Received scans are held in
// memory only - the relay is a collector of last resort, not a system of
// record.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"gopkg.in/yaml.v3"
)

// Scan is one received scan event, as posted by a scanning client.
type Scan struct {
	EventID   string `json:"event_id"`
	Station   string `json:"station"`
	BibNumber int    `json:"bib_number"`
	ScannedAt string `json:"scanned_at"`
	DeviceID  string `json:"device_id"`
	Operator  string `json:"operator"`
}

type rosterSeed struct {
	GeneratedAt string `yaml:"generated_at"`
	Runners     []struct {
		Bib  int    `yaml:"bib"`
		Name string `yaml:"name"`
	} `yaml:"runners"`
}

type rosterEntry struct {
	BibNumber int    `json:"bib_number"`
	Name      string `json:"name"`
}

// Server accepts scan batches and serves the roster snapshot.
type Server struct {
	log *slog.Logger

	mu    sync.Mutex
	seen  map[string]Scan // keyed by event_id
	order []string

	rosterGeneratedAt string
	roster            []rosterEntry
}

// Options configures a Server.
type Options struct {
	// RosterPath is an optional YAML seed file for GET /roster.
	RosterPath string
	Logger     *slog.Logger
}

// New creates a relay server. If a roster seed is configured it is loaded
// eagerly so a bad file fails at startup, not at first request.
func New(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		log:               log,
		seen:              make(map[string]Scan),
		roster:            []rosterEntry{},
		rosterGeneratedAt: "(unseeded)",
	}

	if opts.RosterPath != "" {
		if err := s.loadRoster(opts.RosterPath); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Server) loadRoster(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load roster seed: %w", err)
	}

	var seed rosterSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse roster seed %s: %w", path, err)
	}

	entries := make([]rosterEntry, 0, len(seed.Runners))
	for _, r := range seed.Runners {
		if r.Bib <= 0 {
			continue
		}
		entries = append(entries, rosterEntry{BibNumber: r.Bib, Name: r.Name})
	}

	s.roster = entries
	if seed.GeneratedAt != "" {
		s.rosterGeneratedAt = seed.GeneratedAt
	}
	return nil
}

// Router builds the HTTP routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Scanning clients POST without a Content-Type header (preflight
	// avoidance), so the CORS policy has nothing unusual to allow.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/scan_batch", s.handleScanBatch)
	r.Get("/roster", s.handleRoster)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScanBatch records the posted scans, splitting the event_ids into
// accepted (newly recorded) and ignored (already recorded). Both sets tell
// the client to stop queueing that event.
func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scans []Scan `json:"scans"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	accepted := []string{}
	ignored := []string{}

	s.mu.Lock()
	for _, scan := range req.Scans {
		if scan.EventID == "" || scan.BibNumber <= 0 {
			continue
		}
		if _, dup := s.seen[scan.EventID]; dup {
			ignored = append(ignored, scan.EventID)
			continue
		}
		s.seen[scan.EventID] = scan
		s.order = append(s.order, scan.EventID)
		accepted = append(accepted, scan.EventID)
	}
	total := len(s.order)
	s.mu.Unlock()

	s.log.Info("scan batch", "accepted", len(accepted), "ignored", len(ignored), "total", total)

	writeJSON(w, http.StatusOK, map[string][]string{
		"accepted_event_ids": accepted,
		"ignored_event_ids":  ignored,
	})
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := struct {
		Roster      []rosterEntry `json:"roster"`
		GeneratedAt string        `json:"generated_at"`
	}{Roster: s.roster, GeneratedAt: s.rosterGeneratedAt}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// Received returns all recorded scans in arrival order. Used by tests and
// by the shutdown dump.
func (s *Server) Received() []Scan {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Scan, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.seen[id])
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
