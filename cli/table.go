package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewCheckpointCommand creates the checkpoint command.
func NewCheckpointCommand() *cobra.Command {
	var storageOptions *[]string
	cmd := &cobra.Command{
		Use:   "checkpoint <table-uri>",
		Short: "Write a parquet checkpoint at the latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, cleanup, err := openTable(cmd.Context(), args[0], *storageOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			lc, err := tbl.CreateCheckpoint(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, lc)
		},
	}
	storageOptions = addTableFlags(cmd.Flags())
	return cmd
}

// NewExpireCommand creates the expire command.
func NewExpireCommand() *cobra.Command {
	var (
		retention      time.Duration
		storageOptions *[]string
	)
	cmd := &cobra.Command{
		Use:   "expire <table-uri>",
		Short: "Delete log files below the newest checkpoint past retention",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, cleanup, err := openTable(cmd.Context(), args[0], *storageOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			metrics, err := tbl.ExpireLogs(cmd.Context(), retention)
			if err != nil {
				return err
			}
			return printJSON(cmd, metrics)
		},
	}
	flags := cmd.Flags()
	flags.DurationVar(&retention, "retention", 0,
		"retention window (default the table's delta.logRetentionDuration, or 720h)")
	storageOptions = addTableFlags(flags)
	return cmd
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	var storageOptions *[]string
	cmd := &cobra.Command{
		Use:   "schema <table-uri>",
		Short: "Print the table schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, cleanup, err := openTable(cmd.Context(), args[0], *storageOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			schema, err := tbl.Schema(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, schema)
		},
	}
	storageOptions = addTableFlags(cmd.Flags())
	return cmd
}

// NewDetailsCommand creates the details command.
func NewDetailsCommand() *cobra.Command {
	var (
		flat           bool
		storageOptions *[]string
	)
	cmd := &cobra.Command{
		Use:   "details <table-uri>",
		Short: "Print a summary of the table state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, cleanup, err := openTable(cmd.Context(), args[0], *storageOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			details, err := tbl.Details(cmd.Context())
			if err != nil {
				return err
			}
			if flat {
				flatMap, err := flattenJSON(details)
				if err != nil {
					return err
				}
				return printJSON(cmd, flatMap)
			}
			return printJSON(cmd, details)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&flat, "flat", false, "print as a single-level map with dotted keys")
	storageOptions = addTableFlags(flags)
	return cmd
}

// NewConfigureCommand creates the configure command.
func NewConfigureCommand() *cobra.Command {
	var (
		properties     []string
		storageOptions *[]string
	)
	cmd := &cobra.Command{
		Use:   "configure <table-uri>",
		Short: "Set table properties",
		Example: `  # Shorten the log retention window
  deltactl configure /data/events --set delta.logRetentionDuration="interval 7 days"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseKeyValues(properties)
			if err != nil {
				return err
			}
			tbl, cleanup, err := openTable(cmd.Context(), args[0], *storageOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			version, err := tbl.SetProperties(cmd.Context(), props)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"version": version})
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&properties, "set", nil, "table property as key=value, repeatable")
	cmd.MarkFlagRequired("set")
	storageOptions = addTableFlags(flags)
	return cmd
}
