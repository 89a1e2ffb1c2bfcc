// Package cli provides the deltactl command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deltactl",
		Short:         "Maintenance operations for delta tables",
		Long:          "deltactl runs maintenance operations against delta tables on local disk or S3: compaction, z-ordering, vacuum, checkpoints, log expiry and table configuration.",
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		NewCompactCommand(),
		NewZOrderCommand(),
		NewVacuumCommand(),
		NewCheckpointCommand(),
		NewExpireCommand(),
		NewSchemaCommand(),
		NewDetailsCommand(),
		NewConfigureCommand(),
		NewServeCommand(),
		NewVersionCommand(),
	)
	return rootCmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deltactl %s (%s)\n", Version, GitCommit)
		},
	}
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
