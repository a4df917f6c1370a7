package cli

import (
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitide-user/mst26-cp1/internal/bib"
	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/roster"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Raw bool
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan [input...]",
		Short: "Record bib scans into the local outbox",
		Long: `Record bib scans into the local outbox.

Inputs may be given as arguments or streamed on stdin, one per line (the
mode a wedge scanner or QR reader feeds). Accepted forms are the prefixed
payload ("MST26:021") and a bare bib number ("21"). With --raw, looser
extraction is used for free-form QR payload text.

Example:
  bibscan scan 21 MST26:022
  qr-reader | bibscan scan`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "treat input as raw QR payload text")

	return cmd
}

func runScan(ctx context.Context, opts *ScanOptions, args []string, cmd *cobra.Command) error {
	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local state", err)
	}
	defer env.Close()

	names := roster.New(env.st, roster.Options{APIBase: env.apiBase})
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if len(args) > 0 {
		invalid := 0
		for _, arg := range args {
			if !scanOne(ctx, env, names, f, arg, opts.Raw) {
				invalid++
			}
		}
		if invalid > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d inputs had no bib number", invalid, len(args)))
		}
		return nil
	}

	// Stream mode: one input per line until EOF. Rejections are routine
	// feedback here, never a reason to stop the loop.
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		scanOne(ctx, env, names, f, line, opts.Raw)
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitCommandError, "read input", err)
	}

	pending, err := env.queue.Len(ctx)
	if err != nil {
		return err
	}
	if f.Format == "json" {
		return f.Success(map[string]int{"pending": pending})
	}
	fmt.Fprintf(f.Writer, "pending %d\n", pending)
	return nil
}

// scanOne parses and enqueues one input, printing the outcome. Returns false
// only when the input yields no bib number at all.
func scanOne(ctx context.Context, env *appEnv, names *roster.Cache, f *OutputFormatter, input string, raw bool) bool {
	var (
		n  int
		ok bool
	)
	if raw {
		n, ok = bib.FromScanText(input)
	} else {
		n, ok = bib.Parse(input)
	}
	if !ok {
		_ = f.Error(string(outbox.ReasonInvalid), fmt.Sprintf("no bib number in %q (expected MST26:021 / 21)", input), nil)
		return false
	}

	res, err := env.queue.Enqueue(ctx, n)
	if err != nil {
		_ = f.Error("STORAGE", err.Error(), nil)
		return true
	}

	if f.Format == "json" {
		_ = f.Success(res)
		return true
	}

	switch {
	case res.OK:
		if name := names.Lookup(ctx, n); name != "" {
			fmt.Fprintf(f.Writer, "added bib %d  %s (pending %d)\n", n, name, res.Length)
		} else {
			fmt.Fprintf(f.Writer, "added bib %d (pending %d)\n", n, res.Length)
		}
	case res.Reason == outbox.ReasonDuplicate:
		fmt.Fprintf(f.Writer, "duplicate: bib %d already queued (pending %d)\n", n, res.Length)
	case res.Reason == outbox.ReasonLocked:
		fmt.Fprintf(f.Writer, "locked: bib %d scanned moments ago (pending %d)\n", n, res.Length)
	default:
		fmt.Fprintf(f.Writer, "rejected: bib %d (%s)\n", n, res.Reason)
	}
	return true
}
