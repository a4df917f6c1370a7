package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all pending scans",
		Long: `Discard all pending scans without sending them.

Destructive: the events are gone for good. Prompts for confirmation unless
--yes is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local state", err)
	}
	defer env.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	pending, err := env.queue.Len(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "load queue", err)
	}
	if pending == 0 {
		if f.Format == "json" {
			return f.Success(map[string]int{"cleared": 0, "pending": 0})
		}
		fmt.Fprintln(f.Writer, "queue is empty.")
		return nil
	}

	if !opts.Yes {
		fmt.Fprintf(f.Writer, "Discard %d pending scan(s)? [y/N]: ", pending)
		reader := bufio.NewReader(cmd.InOrStdin())
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(f.Writer, "cancelled.")
			return nil
		}
	}

	if err := env.queue.Clear(ctx); err != nil {
		return WrapExitError(ExitFailure, "clear queue", err)
	}

	if f.Format == "json" {
		return f.Success(map[string]int{"cleared": pending, "pending": 0})
	}
	fmt.Fprintf(f.Writer, "cleared %d pending scan(s).\n", pending)
	return nil
}
