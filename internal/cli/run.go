package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskloop/internal/app"
)

func newRunCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the schedulers declared in a config file",
		Long: `Loads a YAML or JSON config, seeds every scheduler with its jobs and
runs until interrupted or until every scheduler has stopped. Logging
changes in the file are applied live; scheduler changes need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cfgPath)
			if err != nil {
				return fmt.Errorf("load %s: %w", cfgPath, err)
			}
			return serve(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "./taskloop.yaml", "Path to config file (YAML or JSON)")
	return cmd
}
