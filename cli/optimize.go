package cli

import (
	"time"

	"github.com/lsjoeberg/deltactl/delta"
	"github.com/lsjoeberg/deltactl/filter"
	"github.com/spf13/cobra"
)

// NewCompactCommand creates the compact command.
func NewCompactCommand() *cobra.Command {
	var (
		targetSize             int64
		maxConcurrentTasks     int
		minCommitInterval      time.Duration
		preserveInsertionOrder bool
		partitionFilters       []string
		storageOptions         *[]string
	)
	cmd := &cobra.Command{
		Use:   "compact <table-uri>",
		Short: "Merge small files into files close to the target size",
		Example: `  # Compact a local table
  deltactl compact /data/events

  # Compact only one partition of an S3 table
  deltactl compact s3://lake/events -p "day = 25" -o region=eu-north-1`,
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

			metrics, err := tbl.Compact(cmd.Context(), delta.OptimizeOptions{
				TargetSize:             targetSize,
				MaxConcurrentTasks:     maxConcurrentTasks,
				MinCommitInterval:      minCommitInterval,
				PreserveInsertionOrder: preserveInsertionOrder,
				Filters:                conds,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, metrics)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&targetSize, "target-size", 0, "target file size in bytes (default 256MB)")
	flags.IntVar(&maxConcurrentTasks, "max-concurrent-tasks", 0, "max parallel rewrites (default NumCPU)")
	flags.DurationVar(&minCommitInterval, "min-commit-interval", 0, "commit progress at least this often (e.g. 2m)")
	flags.BoolVar(&preserveInsertionOrder, "preserve-insertion-order", false, "keep row order within rewritten files")
	flags.StringArrayVarP(&partitionFilters, "partition-filter", "p", nil,
		`partition predicate like "day >= 10", repeatable, all must match`)
	storageOptions = addTableFlags(flags)
	return cmd
}

// NewZOrderCommand creates the zorder command.
func NewZOrderCommand() *cobra.Command {
	var (
		targetSize         int64
		maxConcurrentTasks int
		minCommitInterval  time.Duration
		partitionFilters   []string
		storageOptions     *[]string
	)
	cmd := &cobra.Command{
		Use:   "zorder <table-uri> <column> [column...]",
		Short: "Rewrite partitions with rows clustered along the z-order curve",
		Example: `  # Cluster by user_id then timestamp
  deltactl zorder /data/events user_id ts`,
		Args: cobra.MinimumNArgs(2),
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

			metrics, err := tbl.ZOrder(cmd.Context(), args[1:], delta.OptimizeOptions{
				TargetSize:         targetSize,
				MaxConcurrentTasks: maxConcurrentTasks,
				MinCommitInterval:  minCommitInterval,
				Filters:            conds,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, metrics)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&targetSize, "target-size", 0, "target file size in bytes (default 256MB)")
	flags.IntVar(&maxConcurrentTasks, "max-concurrent-tasks", 0, "max parallel rewrites (default NumCPU)")
	flags.DurationVar(&minCommitInterval, "min-commit-interval", 0, "commit progress at least this often (e.g. 2m)")
	flags.StringArrayVarP(&partitionFilters, "partition-filter", "p", nil,
		`partition predicate like "day >= 10", repeatable, all must match`)
	storageOptions = addTableFlags(flags)
	return cmd
}
