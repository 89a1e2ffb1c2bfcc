package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danthegoodman1/gojsonutils"
	"github.com/lsjoeberg/deltactl/commitlock"
	"github.com/lsjoeberg/deltactl/delta"
	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/migrations"
	"github.com/lsjoeberg/deltactl/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addTableFlags registers the flags every table command shares.
func addTableFlags(flags *pflag.FlagSet) *[]string {
	return flags.StringArrayP("storage-option", "o", nil,
		"storage backend option as key=value, repeatable (e.g. -o region=eu-north-1)")
}

// parseKeyValues splits repeated key=value flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	kv := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid key=value pair: %q", pair)
		}
		kv[key] = value
	}
	return kv, nil
}

// openTable opens the table behind uri. S3 tables commit under a Postgres
// lease when DELTACTL_LOCK_DSN is configured, since S3 has no atomic
// create. The returned cleanup closes the lock pool.
func openTable(ctx context.Context, uri string, storageOptionPairs []string) (*delta.Table, func(), error) {
	storageOptions, err := parseKeyValues(storageOptionPairs)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var lock deltalog.Locker
	if strings.HasPrefix(uri, "s3://") && utils.LOCK_DSN != "" {
		if _, err := migrations.RunMigrations(utils.LOCK_DSN); err != nil {
			return nil, nil, fmt.Errorf("error running lock migrations: %w", err)
		}
		pool, err := commitlock.Connect(ctx, utils.LOCK_DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to lock DB: %w", err)
		}
		cleanup = pool.Close
		lock = commitlock.New(pool, uri, 0)
	}

	tbl, err := delta.Open(ctx, uri, storageOptions, lock)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return tbl, cleanup, nil
}

// flattenJSON renders v as a single-level map with dotted keys.
func flattenJSON(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(b, &asMap); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal: %w", err)
	}
	flat, err := gojsonutils.Flatten(asMap, nil)
	if err != nil {
		return nil, fmt.Errorf("error in gojsonutils.Flatten: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("flattened value was a %T, not a map", flat)
	}
	return flatMap, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
