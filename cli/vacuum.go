package cli

import (
	"time"

	"github.com/lsjoeberg/deltactl/delta"
	"github.com/lsjoeberg/deltactl/filter"
	"github.com/spf13/cobra"
)

// NewVacuumCommand creates the vacuum command.
func NewVacuumCommand() *cobra.Command {
	var (
		retention          time.Duration
		dryRun             bool
		noEnforceRetention bool
		printFiles         bool
		partitionFilters   []string
		storageOptions     *[]string
	)
	cmd := &cobra.Command{
		Use:   "vacuum <table-uri>",
		Short: "Delete removed files past the retention window",
		Long: `Delete tombstoned data files older than the retention window, plus
untracked files the log never references. Readers of old table versions
can break if files are vacuumed before those versions expire, so a
retention below the table's delta.deletedFileRetentionDuration is
refused unless enforcement is disabled.`,
		Example: `  # See what a vacuum would delete
  deltactl vacuum /data/events --dry-run --print-files

  # Vacuum with a two week window
  deltactl vacuum /data/events --retention-period 336h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conds, err := filter.ParseConditions(partitionFilters)
			if err != nil {
				return err
			}
			tbl, cleanup, err := openTable(cmd.Context(), args[0], *storageOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			metrics, err := tbl.Vacuum(cmd.Context(), delta.VacuumOptions{
				Retention:          retention,
				DryRun:             dryRun,
				NoEnforceRetention: noEnforceRetention,
				Filters:            conds,
			})
			if err != nil {
				return err
			}
			if !printFiles {
				metrics.FilesDeleted = nil
			}
			return printJSON(cmd, metrics)
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&retention, "retention-period", 0,
		"retention window (default the table's delta.deletedFileRetentionDuration, or 168h)")
	flags.BoolVar(&dryRun, "dry-run", false, "list files without deleting them")
	flags.BoolVar(&noEnforceRetention, "no-enforce-retention", false,
		"allow a retention below the table's configured minimum")
	flags.BoolVar(&printFiles, "print-files", false, "include the deleted file list in the output")
	flags.StringArrayVarP(&partitionFilters, "partition-filter", "p", nil,
		`partition predicate like "day >= 10", repeatable, all must match`)
	storageOptions = addTableFlags(flags)
	return cmd
}
