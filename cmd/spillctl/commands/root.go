// Package commands implements the spillctl command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/spill/config"
)

// Version is reported by --version.
var Version = "dev"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "spillctl",
		Short:         "Inspect and maintain spill eviction directories",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "configuration file (default: defaults and SPILL_* environment)")

	root.AddCommand(
		newInspectCommand(),
		newPurgeCommand(),
		newConfigCommand(),
		newStressCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
