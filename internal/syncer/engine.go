package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/digitide-user/mst26-cp1/internal/outbox"
)

const (
	// DefaultBatchSize bounds how many events travel per request.
	DefaultBatchSize = 10

	// DefaultMaxPasses bounds the drain loop. With the batch size above this
	// covers 300 queued events, far beyond a checkpoint's realistic backlog.
	DefaultMaxPasses = 30

	// DefaultTimeout applies per network call. On timeout the in-flight
	// batch is neither assumed sent nor lost; the queue is untouched and the
	// next run resends it.
	DefaultTimeout = 15 * time.Second

	bodyExcerptLen = 300
	respExcerptLen = 500
)

// wireScan is the server-relevant projection of a queued event. Internal
// bookkeeping fields (api_base) are stripped.
type wireScan struct {
	EventID   string `json:"event_id"`
	Station   string `json:"station"`
	BibNumber int    `json:"bib_number"`
	ScannedAt string `json:"scanned_at"`
	DeviceID  string `json:"device_id"`
	Operator  string `json:"operator"`
}

type batchRequest struct {
	Scans []wireScan `json:"scans"`
}

type batchResponse struct {
	AcceptedEventIDs []string `json:"accepted_event_ids"`
	IgnoredEventIDs  []string `json:"ignored_event_ids"`
}

// Report summarizes a completed sync run. Passes is zero when there was
// nothing to send.
type Report struct {
	Accepted  int `json:"accepted"`
	Ignored   int `json:"ignored"`
	Remaining int `json:"remaining"`
	Passes    int `json:"passes"`
}

// Options configures an Engine.
type Options struct {
	APIBase   string
	BatchSize int           // defaults to DefaultBatchSize
	MaxPasses int           // defaults to DefaultMaxPasses
	Timeout   time.Duration // defaults to DefaultTimeout

	// Online reports whether connectivity is believed to be up. Nil means
	// unknown, which is treated as online (the transport failure path covers
	// being wrong).
	Online func() bool

	// Client overrides the HTTP client, for tests.
	Client *http.Client

	Logger *slog.Logger
}

// Engine drains the outbox queue against the remote endpoint.
type Engine struct {
	queue     *outbox.Queue
	client    *http.Client
	apiBase   string
	batchSize int
	maxPasses int
	online    func() bool
	log       *slog.Logger

	running atomic.Bool
}

// New creates a sync engine over the given queue.
func New(queue *outbox.Queue, opts Options) *Engine {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		queue:     queue,
		client:    client,
		apiBase:   opts.APIBase,
		batchSize: batchSize,
		maxPasses: maxPasses,
		online:    opts.Online,
		log:       log,
	}
}

// Run executes one sync run to convergence or failure.
//
// An empty queue returns a zero Report with no network I/O. A run started
// while another is in flight fails immediately with CodeBusy. Any transport
// or protocol failure aborts the run with the queue left in a consistent
// state: untouched for the failing batch, already pruned for batches
// acknowledged earlier in the run.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, &RunError{Code: CodeBusy, Message: "sync already running"}
	}
	defer e.running.Store(false)

	var report Report

	events, err := e.queue.Load(ctx)
	if err != nil {
		return report, err
	}
	if len(events) == 0 {
		return report, nil
	}

	if e.online != nil && !e.online() {
		return report, &RunError{Code: CodeOffline, Message: "cannot send while offline"}
	}

	for pass := 1; ; pass++ {
		if pass > e.maxPasses {
			report.Remaining = len(events)
			return report, &RunError{
				Code:    CodeNotConverged,
				Message: fmt.Sprintf("queue did not converge after %d passes", e.maxPasses),
			}
		}
		report.Passes = pass

		// Re-read each pass: the queue is the source of truth for what is
		// still unacknowledged.
		events, err = e.queue.Load(ctx)
		if err != nil {
			return report, err
		}
		if len(events) == 0 {
			break
		}

		batch := events
		if len(batch) > e.batchSize {
			batch = batch[:e.batchSize]
		}

		e.log.Debug("sending batch", "pass", pass, "batch", len(batch), "pending", len(events))

		resp, runErr := e.send(ctx, batch)
		if runErr != nil {
			report.Remaining = len(events)
			return report, runErr
		}

		report.Accepted += len(resp.AcceptedEventIDs)
		report.Ignored += len(resp.IgnoredEventIDs)

		// Accepted and ignored are both "done": the server holds the event
		// either way.
		done := make(map[string]bool, len(resp.AcceptedEventIDs)+len(resp.IgnoredEventIDs))
		for _, id := range resp.AcceptedEventIDs {
			done[id] = true
		}
		for _, id := range resp.IgnoredEventIDs {
			done[id] = true
		}

		next := events[:0:0]
		for _, ev := range events {
			if !done[ev.EventID] {
				next = append(next, ev)
			}
		}

		removed := len(events) - len(next)

		// Persist the pruned queue before the next pass so partial progress
		// survives an interruption.
		if _, err := e.queue.Save(ctx, next); err != nil {
			return report, err
		}

		if removed == 0 {
			respJSON, _ := json.Marshal(resp)
			report.Remaining = len(events)
			return report, &RunError{
				Code:    CodeNoProgress,
				Message: "server acknowledged nothing; is scan_batch echoing event_ids?",
				Excerpt: excerpt(respJSON, respExcerptLen),
			}
		}

		events = next
	}

	remaining, err := e.queue.Len(ctx)
	if err != nil {
		return report, err
	}
	report.Remaining = remaining

	e.log.Info("sync converged",
		"accepted", report.Accepted,
		"ignored", report.Ignored,
		"remaining", report.Remaining,
		"passes", report.Passes,
	)
	return report, nil
}

// send posts one batch and parses the acknowledgment sets. Any failure is a
// *RunError with CodeTransport; the caller aborts without touching the
// queue.
func (e *Engine) send(ctx context.Context, batch []outbox.ScanEvent) (batchResponse, *RunError) {
	payload := batchRequest{Scans: make([]wireScan, 0, len(batch))}
	for _, ev := range batch {
		payload.Scans = append(payload.Scans, wireScan{
			EventID:   ev.EventID,
			Station:   ev.Station,
			BibNumber: ev.BibNumber,
			ScannedAt: ev.ScannedAt,
			DeviceID:  ev.DeviceID,
			Operator:  ev.Operator,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return batchResponse{}, &RunError{Code: CodeTransport, Message: "encode batch", Excerpt: err.Error()}
	}

	// No Content-Type header by design: the browser build relies on that to
	// avoid a CORS preflight, and the server accepts the bare POST. Keeping
	// the requests identical means one server code path to debug.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/scan_batch", bytes.NewReader(body))
	if err != nil {
		return batchResponse{}, &RunError{Code: CodeTransport, Message: "build request", Excerpt: err.Error()}
	}

	httpResp, err := e.client.Do(req)
	if err != nil {
		return batchResponse{}, &RunError{Code: CodeTransport, Message: "send batch", Excerpt: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return batchResponse{}, &RunError{
			Code: CodeTransport, Message: "read response",
			Status: httpResp.StatusCode, Excerpt: err.Error(),
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return batchResponse{}, &RunError{
			Code: CodeTransport, Message: "batch rejected",
			Status: httpResp.StatusCode, Excerpt: excerpt(respBody, bodyExcerptLen),
		}
	}

	var resp batchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return batchResponse{}, &RunError{
			Code: CodeTransport, Message: "unparseable response",
			Status: httpResp.StatusCode, Excerpt: excerpt(respBody, bodyExcerptLen),
		}
	}

	return resp, nil
}
