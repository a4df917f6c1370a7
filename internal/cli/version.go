package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is stamped at build time:
//
//	go build -ldflags "-X github.com/digitide-user/mst26-cp1/internal/cli.buildVersion=..."
var buildVersion = "dev"

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if f.Format == "json" {
				return f.Success(map[string]string{"version": buildVersion})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bibscan %s\n", buildVersion)
			return nil
		},
	}
}
