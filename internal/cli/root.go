package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/petal/internal/config"
)

// NewRootCommand creates the petal command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RunOptions{Modules: BuiltinModules})
}

func newRootCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "petal [config-file]",
		Short: "PeTaL data-mining pipeline",
		Long: `Run the PeTaL data-mining pipeline.

The pipeline loads its settings file, resolves the dependencies between the
registered modules, schedules them against the graph store and keeps running
until interrupted. Settings are reloaded periodically and whenever the file
changes, so modules can be whitelisted or blacklisted without a restart.

Example:
  petal
  petal config/local.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			return runPipeline(cmd, opts, path)
		},
	}
	return cmd
}
