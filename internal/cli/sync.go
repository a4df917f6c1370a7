package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitide-user/mst26-cp1/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send pending scans to the collection endpoint",
		Long: `Send pending scans to the collection endpoint in batches.

Each batch is pruned from the outbox as soon as the server acknowledges it,
so partial progress survives an interruption. A failed batch aborts the run
with the remaining queue untouched; run sync again to retry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}

	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	env, err := openEnv(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local state", err)
	}
	defer env.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	engine := syncer.New(env.queue, syncer.Options{
		APIBase:   env.apiBase,
		BatchSize: env.cfg.BatchSize,
		MaxPasses: env.cfg.MaxSyncPasses,
		Timeout:   env.cfg.SyncTimeout,
	})

	report, err := engine.Run(ctx)
	if err != nil {
		var runErr *syncer.RunError
		if errors.As(err, &runErr) {
			_ = f.Error(string(runErr.Code), runErr.Error(), report)
			return NewExitError(ExitFailure, runErr.Error())
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	if f.Format == "json" {
		return f.Success(report)
	}

	if report.Passes == 0 {
		fmt.Fprintln(f.Writer, "nothing to send.")
		return nil
	}

	fmt.Fprintf(f.Writer, "sync complete: accepted=%d ignored=%d remaining=%d\n",
		report.Accepted, report.Ignored, report.Remaining)
	return nil
}
