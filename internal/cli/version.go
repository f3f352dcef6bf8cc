package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const modulePath = "github.com/mesh-intelligence/tally"

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0"

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tally version",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": Version,
					"module":  modulePath,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tally v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
