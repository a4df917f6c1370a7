package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/digitide-user/mst26-cp1/internal/roster"
)

// RosterOptions holds flags for the roster command.
type RosterOptions struct {
	*RootOptions
	Lookup int
}

// NewRosterCommand creates the roster command.
func NewRosterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RosterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Refresh or query the roster snapshot",
		Long: `Refresh the local roster snapshot from the collection endpoint,
or look up a runner name with --lookup. The roster is display-only; queue
and sync behavior never depend on it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoster(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Lookup, "lookup", 0, "look up the name for a bib instead of refreshing")

	return cmd
}

func runRoster(opts *RosterOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local state", err)
	}
	defer env.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cache := roster.New(env.st, roster.Options{
		APIBase: env.apiBase,
		Client:  &http.Client{Timeout: env.cfg.SyncTimeout},
	})

	if opts.Lookup > 0 {
		name := cache.Lookup(ctx, opts.Lookup)
		if f.Format == "json" {
			return f.Success(map[string]any{"bib_number": opts.Lookup, "name": name})
		}
		if name == "" {
			fmt.Fprintf(f.Writer, "no name for bib %d\n", opts.Lookup)
		} else {
			fmt.Fprintf(f.Writer, "%d  %s\n", opts.Lookup, name)
		}
		return nil
	}

	snap, err := cache.Refresh(ctx)
	if err != nil {
		_ = f.Error("ROSTER_REFRESH", err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	if f.Format == "json" {
		return f.Success(snap)
	}
	fmt.Fprintf(f.Writer, "roster updated: %d entries, generated_at=%s\n", snap.Count, snap.GeneratedAt)
	return nil
}
