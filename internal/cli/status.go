package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/roster"
	"github.com/digitide-user/mst26-cp1/internal/store"
)

// recentLimit bounds how many pending entries status renders.
const recentLimit = 20

// statusReport is the JSON payload for the status command.
type statusReport struct {
	APIBase       string         `json:"api_base"`
	DeviceID      string         `json:"device_id"`
	Operator      string         `json:"operator"`
	Station       string         `json:"station"`
	Pending       int            `json:"pending"`
	RosterCount   int            `json:"roster_count"`
	RosterAt      string         `json:"roster_refreshed_at,omitempty"`
	RecentPending []pendingEntry `json:"recent_pending"`
}

type pendingEntry struct {
	Time      string `json:"time"`
	BibNumber int    `json:"bib_number"`
	Name      string `json:"name,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show identity, endpoint, and pending scans",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	env, err := openEnv(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local state", err)
	}
	defer env.Close()

	events, err := env.queue.Load(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "load queue", err)
	}

	rosterCount, err := env.st.RosterCount(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "read roster", err)
	}
	names := roster.New(env.st, roster.Options{APIBase: env.apiBase})
	rosterAt, _ := env.st.GetSetting(ctx, store.KeyRosterRefreshedAt)

	report := statusReport{
		APIBase:       env.apiBase,
		DeviceID:      env.id.DeviceID,
		Operator:      env.id.Operator,
		Station:       env.cfg.Station,
		Pending:       len(events),
		RosterCount:   rosterCount,
		RosterAt:      rosterAt,
		RecentPending: []pendingEntry{},
	}

	// Newest first, capped, matching the pending list on the scanner page.
	start := len(events) - recentLimit
	if start < 0 {
		start = 0
	}
	for i := len(events) - 1; i >= start; i-- {
		ev := events[i]
		report.RecentPending = append(report.RecentPending, pendingEntry{
			Time:      clockTime(ev.ScannedAt),
			BibNumber: ev.BibNumber,
			Name:      names.Lookup(ctx, ev.BibNumber),
		})
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if f.Format == "json" {
		return f.Success(report)
	}

	fmt.Fprintf(f.Writer, "API base:  %s\n", report.APIBase)
	fmt.Fprintf(f.Writer, "Device:    %s\n", report.DeviceID)
	fmt.Fprintf(f.Writer, "Operator:  %s\n", report.Operator)
	fmt.Fprintf(f.Writer, "Station:   %s\n", report.Station)
	fmt.Fprintf(f.Writer, "Pending:   %d\n", report.Pending)
	if report.RosterAt != "" {
		fmt.Fprintf(f.Writer, "Roster:    %d entries (refreshed %s)\n", report.RosterCount, report.RosterAt)
	} else {
		fmt.Fprintf(f.Writer, "Roster:    %d entries\n", report.RosterCount)
	}

	if len(report.RecentPending) > 0 {
		fmt.Fprintln(f.Writer)
		fmt.Fprintln(f.Writer, "Recent pending scans:")
		for _, e := range report.RecentPending {
			if e.Name != "" {
				fmt.Fprintf(f.Writer, "  %s  %-6d %s\n", e.Time, e.BibNumber, e.Name)
			} else {
				fmt.Fprintf(f.Writer, "  %s  %d\n", e.Time, e.BibNumber)
			}
		}
	}

	return nil
}

// clockTime reduces a stored timestamp to HH:MM:SS for the pending list.
// Unparseable timestamps render as-is rather than hiding the entry.
func clockTime(scannedAt string) string {
	t, err := time.Parse(outbox.TimeLayout, scannedAt)
	if err != nil {
		return scannedAt
	}
	return t.Format("15:04:05")
}
