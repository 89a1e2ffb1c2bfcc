package deltalog

import (
	"context"
	"fmt"
	"time"
)

type ExpireMetrics struct {
	// Versions below which log files were eligible for deletion
	MinRetainedVersion int64
	CommitsDeleted     int64
	CheckpointsDeleted int64
}

// ExpireLogs deletes commit and checkpoint files older than the retention
// cutoff that fall below the newest checkpoint. The newest checkpoint and
// everything after it always survives so the table stays replayable.
func (l *Log) ExpireLogs(ctx context.Context, retention time.Duration, now time.Time) (ExpireMetrics, error) {
	var metrics ExpireMetrics

	listing, err := l.list(ctx)
	if err != nil {
		return metrics, err
	}
	if len(listing.Commits) == 0 && len(listing.Checkpoints) == 0 {
		return metrics, ErrNotATable
	}
	if len(listing.Checkpoints) == 0 {
		// nothing can be expired without a checkpoint to replay from
		return metrics, nil
	}

	cutoff := now.Add(-retention)
	metrics.MinRetainedVersion = listing.Checkpoints[len(listing.Checkpoints)-1].Version

	for _, entry := range listing.Commits {
		if entry.Version >= metrics.MinRetainedVersion || entry.Info.ModTime.After(cutoff) {
			continue
		}
		if err := l.store.Delete(ctx, entry.Info.Key); err != nil {
			return metrics, fmt.Errorf("error deleting commit %d: %w", entry.Version, err)
		}
		metrics.CommitsDeleted++
	}
	for _, entry := range listing.Checkpoints {
		if entry.Version >= metrics.MinRetainedVersion || entry.Info.ModTime.After(cutoff) {
			continue
		}
		if err := l.store.Delete(ctx, entry.Info.Key); err != nil {
			return metrics, fmt.Errorf("error deleting checkpoint %d: %w", entry.Version, err)
		}
		metrics.CheckpointsDeleted++
	}

	logger.Debug().
		Int64("commitsDeleted", metrics.CommitsDeleted).
		Int64("checkpointsDeleted", metrics.CheckpointsDeleted).
		Msg("expired log files")
	return metrics, nil
}
