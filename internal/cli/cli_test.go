package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitide-user/mst26-cp1/internal/relay"
)

// execute runs the root command with the given args against a fresh command
// tree, capturing combined output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

// newRelay starts an in-process collection endpoint for integration runs.
func newRelay(t *testing.T) (*relay.Server, *httptest.Server) {
	t.Helper()
	s, err := relay.New(relay.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "bibscan.db")
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "--format", "xml", "--db", testDB(t), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestScanThenStatus(t *testing.T) {
	_, srv := newRelay(t)
	db := testDB(t)

	out, err := execute(t, "", "--db", db, "--api", srv.URL, "scan", "21", "MST26:022")
	require.NoError(t, err)
	assert.Contains(t, out, "added bib 21")
	assert.Contains(t, out, "added bib 22 (pending 2)")

	out, err = execute(t, "", "--db", db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:   2")
	assert.Contains(t, out, srv.URL, "the --api override persists across invocations")
}

func TestScanStreamMode(t *testing.T) {
	db := testDB(t)

	out, err := execute(t, "21\n\nMST26:022\n", "--db", db, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "added bib 21")
	assert.Contains(t, out, "added bib 22")
	assert.Contains(t, out, "pending 2")
}

func TestScanInvalidInput(t *testing.T) {
	out, err := execute(t, "", "--db", testDB(t), "scan", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "no bib number")
}

func TestScanLockedRepeat(t *testing.T) {
	out, err := execute(t, "", "--db", testDB(t), "scan", "21", "21")
	require.NoError(t, err, "a locked repeat is routine feedback, not a failure")
	assert.Contains(t, out, "added bib 21")
	assert.Contains(t, out, "locked: bib 21")
}

func TestScanJSONOutput(t *testing.T) {
	out, err := execute(t, "", "--db", testDB(t), "--format", "json", "scan", "21")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			OK     bool `json:"ok"`
			Length int  `json:"length"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.OK)
	assert.Equal(t, 1, resp.Data.Length)
}

func TestSyncRoundTrip(t *testing.T) {
	s, srv := newRelay(t)
	db := testDB(t)

	_, err := execute(t, "", "--db", db, "--api", srv.URL, "scan", "21", "22")
	require.NoError(t, err)

	out, err := execute(t, "", "--db", db, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "sync complete: accepted=2 ignored=0 remaining=0")
	assert.Len(t, s.Received(), 2)

	// Nothing left to send on the second run.
	out, err = execute(t, "", "--db", db, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to send.")

	out, err = execute(t, "", "--db", db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:   0")
}

func TestSyncTransportFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // refuse connections
	db := testDB(t)

	_, err := execute(t, "", "--db", db, "--api", srv.URL, "scan", "21")
	require.NoError(t, err)

	out, err := execute(t, "", "--db", db, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "TRANSPORT_FAILED")

	// The queue survives for the next attempt.
	out, err = execute(t, "", "--db", db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:   1")
}

func TestClear(t *testing.T) {
	db := testDB(t)

	_, err := execute(t, "", "--db", db, "scan", "21")
	require.NoError(t, err)

	// Declining the prompt leaves the queue alone.
	out, err := execute(t, "n\n", "--db", db, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled.")

	out, err = execute(t, "", "--db", db, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 pending scan(s).")

	out, err = execute(t, "", "--db", db, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "queue is empty.")
}

func TestImport(t *testing.T) {
	db := testDB(t)
	export := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(export, []byte(`[21, {"bibNumber": 22}]`), 0o644))

	out, err := execute(t, "", "--db", db, "import", export)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 new scan(s)")

	out, err = execute(t, "", "--db", db, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:   2")
}

func TestImportRejectsNonArray(t *testing.T) {
	export := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(export, []byte(`{"not":"an array"}`), 0o644))

	_, err := execute(t, "", "--db", testDB(t), "import", export)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRosterRefreshAndLookup(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
generated_at: g1
runners:
  - bib: 21
    name: Yamada Taro
`), 0o644))

	s, err := relay.New(relay.Options{RosterPath: seed})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	db := testDB(t)
	out, err := execute(t, "", "--db", db, "--api", srv.URL, "roster")
	require.NoError(t, err)
	assert.Contains(t, out, "roster updated: 1 entries, generated_at=g1")

	out, err = execute(t, "", "--db", db, "roster", "--lookup", "21")
	require.NoError(t, err)
	assert.Contains(t, out, "Yamada Taro")

	out, err = execute(t, "", "--db", db, "roster", "--lookup", "999")
	require.NoError(t, err)
	assert.Contains(t, out, "no name for bib 999")

	// Scans of a known runner render the name.
	out, err = execute(t, "", "--db", db, "scan", "21")
	require.NoError(t, err)
	assert.Contains(t, out, "added bib 21  Yamada Taro")
}

func TestStatusJSON(t *testing.T) {
	db := testDB(t)
	_, err := execute(t, "", "--db", db, "scan", "21")
	require.NoError(t, err)

	out, err := execute(t, "", "--db", db, "--format", "json", "status")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   statusReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Pending)
	assert.Equal(t, "cp1", resp.Data.Station)
	assert.NotEmpty(t, resp.Data.DeviceID)
	require.Len(t, resp.Data.RecentPending, 1)
	assert.Equal(t, 21, resp.Data.RecentPending[0].BibNumber)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "bibscan dev")
}

func TestClockTime(t *testing.T) {
	assert.Equal(t, "10:12:34", clockTime("2026-02-06T10:12:34+09:00"))
	assert.Equal(t, "garbage", clockTime("garbage"))
}
