// Package commands wires the openheal-research CLI: the HTTP server, schema
// migration, batch match sync and researcher account creation.
package commands

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// LogLevel overrides LOG_LEVEL when set.
	LogLevel string
}

// NewRootCommand creates the root command of the openheal-research CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "openheal-research",
		Short:         "OpenHeal research administration",
		Long:          "Admin backend of the OpenHeal research team: participants, OpenHeal match sync and telemetry ingest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewUpdateMatchesCommand(opts))
	cmd.AddCommand(NewCreateResearcherCommand(opts))

	return cmd
}
