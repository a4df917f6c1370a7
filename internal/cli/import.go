package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a queue export into the local outbox",
		Long: `Merge a JSON queue export into the local outbox.

The file must hold a JSON array of queue entries - either the canonical
shape this client writes or the legacy shapes of the browser build's
localStorage export. Entries pass through the same normalize and
dedupe-by-bib pass as every other write; existing queue entries win over
imported duplicates.

Example:
  bibscan import mst26_cp1_v1_queue.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read export file", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s is not a JSON array", path), err)
	}

	env, err := openEnv(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local state", err)
	}
	defer env.Close()

	added, total, err := env.queue.ImportRaw(ctx, raws)
	if err != nil {
		return WrapExitError(ExitFailure, "import queue export", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if f.Format == "json" {
		return f.Success(map[string]int{"added": added, "pending": total})
	}
	fmt.Fprintf(f.Writer, "imported %d new scan(s) from %d entries (pending %d)\n", added, len(raws), total)
	return nil
}
