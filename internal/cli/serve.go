package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitide-user/mst26-cp1/internal/relay"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen     string
	RosterPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a venue-local collection relay",
		Long: `Run a minimal stand-in for the remote collection endpoint.

Accepts POST /scan_batch with event_id deduplication and serves GET /roster
from a YAML seed file. Useful when the upstream proxy is unreachable, or for
exercising a scanning client end to end. Received scans are held in memory
and dumped to stdout on shutdown.

Example:
  bibscan serve --listen :8799 --roster roster.yaml
  bibscan --api http://localhost:8799 sync`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":8799", "listen address")
	cmd.Flags().StringVar(&opts.RosterPath, "roster", "", "YAML roster seed file")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	srv, err := relay.New(relay.Options{RosterPath: opts.RosterPath, Logger: slog.Default()})
	if err != nil {
		return WrapExitError(ExitCommandError, "start relay", err)
	}

	httpSrv := &http.Server{
		Addr:         opts.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpSrv.ListenAndServe()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "relay listening on %s\n", opts.Listen)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "relay error", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}

	// Dump what was collected so an interrupted session loses nothing.
	received := srv.Received()
	fmt.Fprintf(cmd.OutOrStdout(), "collected %d scan(s)\n", len(received))
	for _, s := range received {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  bib=%d  device=%s  %s\n", s.ScannedAt, s.BibNumber, s.DeviceID, s.EventID)
	}

	return nil
}
