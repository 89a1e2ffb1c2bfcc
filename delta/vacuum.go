package delta

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/filter"
	"github.com/lsjoeberg/deltactl/partitioner"
)

type (
	VacuumOptions struct {
		// Retention for deleted files, the table's
		// delta.deletedFileRetentionDuration when zero
		Retention time.Duration
		// DryRun reports what would be deleted without deleting
		DryRun bool
		// NoEnforceRetention allows a retention shorter than the table
		// property, which can break readers of old versions
		NoEnforceRetention bool
		// Filters limits the vacuum to files in matching partitions
		Filters []filter.Condition
	}

	VacuumMetrics struct {
		DryRun          bool     `json:"dryRun"`
		FilesDeleted    []string `json:"filesDeleted,omitempty"`
		NumFilesDeleted int64    `json:"numFilesDeleted"`
		BytesDeleted    int64    `json:"bytesDeleted"`
		RetentionMillis int64    `json:"retentionMillis"`
		TimeMS          int64    `json:"timeMs"`
	}
)

// Vacuum deletes tombstoned files past the retention window, plus untracked
// files older than the window that the log never references.
func (t *Table) Vacuum(ctx context.Context, opts VacuumOptions) (VacuumMetrics, error) {
	var metrics VacuumMetrics
	start := time.Now()
	metrics.DryRun = opts.DryRun

	snap, err := t.log.Snapshot(ctx)
	if err != nil {
		return metrics, err
	}

	minRetention := snap.RetentionProperty(deltalog.PropDeletedRetention, deltalog.DefaultDeletedRetention)
	retention := opts.Retention
	if retention == 0 {
		retention = minRetention
	} else if retention < minRetention && !opts.NoEnforceRetention {
		return metrics, fmt.Errorf(
			"retention %s is shorter than the table's configured %s of %s, refusing without enforcement disabled",
			retention, deltalog.PropDeletedRetention, minRetention)
	}
	metrics.RetentionMillis = retention.Milliseconds()

	now := time.Now()
	cutoff := now.Add(-retention)

	objects, err := t.store.List(ctx, "")
	if err != nil {
		return metrics, fmt.Errorf("error listing table files: %w", err)
	}

	type candidate struct {
		key  string
		size int64
	}
	var candidates []candidate
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, deltalog.LogDir+"/") {
			continue
		}
		if _, active := snap.Files[obj.Key]; active {
			continue
		}
		if rm, ok := snap.Tombstones[obj.Key]; ok {
			if !partitioner.Matches(rm.PartitionValues, opts.Filters) {
				continue
			}
			if time.UnixMilli(rm.DeletionTimestamp).Before(cutoff) {
				candidates = append(candidates, candidate{key: obj.Key, size: obj.Size})
			}
			continue
		}
		// untracked file, go by mod time and leave hidden paths alone
		if isHiddenPath(obj.Key) {
			continue
		}
		if len(opts.Filters) > 0 {
			dir := path.Dir(obj.Key)
			if dir == "." {
				dir = ""
			}
			values, err := partitioner.ParsePath(dir)
			if err != nil || !partitioner.Matches(values, opts.Filters) {
				continue
			}
		}
		if obj.ModTime.Before(cutoff) {
			candidates = append(candidates, candidate{key: obj.Key, size: obj.Size})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].key < candidates[j].key })

	for _, c := range candidates {
		metrics.FilesDeleted = append(metrics.FilesDeleted, c.key)
		metrics.BytesDeleted += c.size
	}
	metrics.NumFilesDeleted = int64(len(candidates))

	if opts.DryRun || len(candidates) == 0 {
		metrics.TimeMS = time.Since(start).Milliseconds()
		return metrics, nil
	}

	_, err = t.commit(ctx, []deltalog.Action{{CommitInfo: commitInfo("VACUUM START", map[string]any{
		"retentionCheckEnabled": !opts.NoEnforceRetention,
		"retentionMillis":       retention.Milliseconds(),
		"numFilesToDelete":      metrics.NumFilesDeleted,
	})}}, nil)
	if err != nil {
		return metrics, fmt.Errorf("error committing vacuum start: %w", err)
	}

	for _, c := range candidates {
		if err := t.store.Delete(ctx, c.key); err != nil {
			return metrics, fmt.Errorf("error deleting %s: %w", c.key, err)
		}
	}

	_, err = t.commit(ctx, []deltalog.Action{{CommitInfo: commitInfo("VACUUM END", map[string]any{
		"status":          "COMPLETED",
		"numDeletedFiles": metrics.NumFilesDeleted,
	})}}, nil)
	if err != nil {
		return metrics, fmt.Errorf("error committing vacuum end: %w", err)
	}

	metrics.TimeMS = time.Since(start).Milliseconds()
	logger.Debug().Interface("metrics", metrics).Msg("vacuumed table")
	return metrics, nil
}

// isHiddenPath reports whether any path segment is a hidden or internal
// directory. Partition directories are never hidden even when their value
// starts with an underscore.
func isHiddenPath(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if strings.Contains(segment, "=") {
			continue
		}
		if strings.HasPrefix(segment, ".") || strings.HasPrefix(segment, "_") {
			return true
		}
	}
	return false
}
