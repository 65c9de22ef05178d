package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/version"
)

// NewVersionCmd constructs the `arandu version` subcommand.
// It prints the binary version, git commit, and build date injected at
// build time via -ldflags.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the arandu version, git commit, and build date",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
