// The init command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tally/internal/paths"
	"github.com/mesh-intelligence/tally/internal/sqlite"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and data directory",
		Long: "Write a default config.yaml to the config directory unless one exists,\n" +
			"then create the data directory and its JSONL files.",
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(a.cfgDir, 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			wrote, err := writeConfigIfMissing(paths.ConfigFile(a.cfgDir), defaultFileConfig(a.cfg.DataDir))
			if err != nil {
				return err
			}

			backend := sqlite.NewBackend()
			if err := backend.Attach(a.cfg); err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			if err := backend.Detach(); err != nil {
				return fmt.Errorf("finalizing storage: %w", err)
			}

			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"config_dir":     a.cfgDir,
					"data_dir":       a.cfg.DataDir,
					"config_written": wrote,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tally initialized in %s\n", a.cfg.DataDir)
			return nil
		},
	}
}
