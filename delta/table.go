// Package delta implements maintenance operations on delta tables:
// compaction, z-ordering, vacuum, checkpointing, log expiry and table
// configuration.
package delta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/gologger"
	"github.com/lsjoeberg/deltactl/objstore"
	"github.com/lsjoeberg/deltactl/utils"
)

var logger = gologger.NewLogger()

var (
	ErrConcurrentModification = errors.New("table modified by a concurrent writer")
)

const maxCommitAttempts = 5

type (
	Table struct {
		uri   string
		store objstore.Store
		log   *deltalog.Log
	}

	// TableDetails is the summary the details operation reports.
	TableDetails struct {
		URI              string            `json:"uri"`
		Version          int64             `json:"version"`
		ID               string            `json:"id"`
		Name             string            `json:"name,omitempty"`
		Description      string            `json:"description,omitempty"`
		PartitionColumns []string          `json:"partitionColumns"`
		Configuration    map[string]string `json:"configuration"`
		NumFiles         int64             `json:"numFiles"`
		SizeBytes        int64             `json:"sizeBytes"`
		NumTombstones    int64             `json:"numTombstones"`
		CreatedTime      int64             `json:"createdTime,omitempty"`
		LastModified     time.Time         `json:"lastModified"`
	}
)

// Open connects to the table at uri and verifies a delta log exists there.
// lock may be nil for stores with atomic commits.
func Open(ctx context.Context, uri string, storageOptions map[string]string, lock deltalog.Locker) (*Table, error) {
	store, err := objstore.Open(uri, storageOptions)
	if err != nil {
		return nil, fmt.Errorf("error opening store: %w", err)
	}
	t := &Table{
		uri:   uri,
		store: store,
		log:   deltalog.New(store, lock),
	}
	if _, err := t.log.LatestVersion(ctx); err != nil {
		return nil, fmt.Errorf("error opening table %s: %w", uri, err)
	}
	return t, nil
}

func (t *Table) URI() string {
	return t.uri
}

func (t *Table) Snapshot(ctx context.Context) (*deltalog.Snapshot, error) {
	return t.log.Snapshot(ctx)
}

// commit writes actions at the next version, retrying on version conflicts.
// check runs against a fresh snapshot before each retry so callers can bail
// out when a concurrent writer invalidated the commit.
func (t *Table) commit(ctx context.Context, actions []deltalog.Action, check func(*deltalog.Snapshot) error) (int64, error) {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		latest, err := t.log.LatestVersion(ctx)
		if err != nil {
			return 0, err
		}
		version := latest + 1
		err = t.log.Commit(ctx, version, actions)
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, deltalog.ErrVersionConflict) {
			return 0, err
		}
		logger.Debug().Int64("version", version).Msg("commit conflict, refreshing")
		if check != nil {
			snap, err := t.log.Snapshot(ctx)
			if err != nil {
				return 0, err
			}
			if err := check(snap); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("exceeded %d commit attempts: %w", maxCommitAttempts, ErrConcurrentModification)
}

func commitInfo(operation string, parameters map[string]any) deltalog.CommitInfo {
	return deltalog.CommitInfo{
		"timestamp":           time.Now().UnixMilli(),
		"operation":           operation,
		"operationParameters": parameters,
		// k-sortable so commit infos order chronologically across tables
		"operationId":   utils.GenKSortedID("op_"),
		"clientVersion": "deltactl-go",
	}
}

// Schema returns the parsed table schema at the latest version.
func (t *Table) Schema(ctx context.Context) (deltalog.Schema, error) {
	snap, err := t.log.Snapshot(ctx)
	if err != nil {
		return deltalog.Schema{}, err
	}
	if snap.Metadata == nil {
		return deltalog.Schema{}, fmt.Errorf("table %s has no metadata action", t.uri)
	}
	return snap.Metadata.ParseSchema()
}

// Details summarizes the table state at the latest version.
func (t *Table) Details(ctx context.Context) (TableDetails, error) {
	var details TableDetails
	snap, err := t.log.Snapshot(ctx)
	if err != nil {
		return details, err
	}
	details = TableDetails{
		URI:           t.uri,
		Version:       snap.Version,
		NumFiles:      int64(len(snap.Files)),
		NumTombstones: int64(len(snap.Tombstones)),
		LastModified:  snap.LastModified,
		Configuration: map[string]string{},
	}
	for _, add := range snap.Files {
		details.SizeBytes += add.Size
	}
	if m := snap.Metadata; m != nil {
		details.ID = m.ID
		details.Name = m.Name
		details.Description = m.Description
		details.PartitionColumns = m.PartitionColumns
		details.Configuration = m.Configuration
		details.CreatedTime = m.CreatedTime
	}
	return details, nil
}

// SetProperties merges properties into the table configuration and commits
// the updated metadata.
func (t *Table) SetProperties(ctx context.Context, properties map[string]string) (int64, error) {
	snap, err := t.log.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if snap.Metadata == nil {
		return 0, fmt.Errorf("table %s has no metadata action", t.uri)
	}
	for key, value := range properties {
		if _, err := validateProperty(key, value); err != nil {
			return 0, err
		}
	}

	meta := *snap.Metadata
	meta.Configuration = make(map[string]string, len(snap.Metadata.Configuration)+len(properties))
	for k, v := range snap.Metadata.Configuration {
		meta.Configuration[k] = v
	}
	for k, v := range properties {
		meta.Configuration[k] = v
	}

	actions := []deltalog.Action{
		{CommitInfo: commitInfo("SET TBLPROPERTIES", map[string]any{
			"properties": properties,
		})},
		{Metadata: &meta},
	}
	return t.commit(ctx, actions, nil)
}

// validateProperty rejects property values the maintenance operations
// themselves would later choke on.
func validateProperty(key, value string) (string, error) {
	switch key {
	case deltalog.PropLogRetention, deltalog.PropDeletedRetention:
		if _, err := deltalog.ParseInterval(value); err != nil {
			return "", fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return value, nil
}

// CreateCheckpoint writes a parquet checkpoint at the latest version.
func (t *Table) CreateCheckpoint(ctx context.Context) (deltalog.LastCheckpoint, error) {
	return t.log.WriteCheckpoint(ctx)
}

// ExpireLogs removes log files past the table's delta.logRetentionDuration,
// or past retention when nonzero.
func (t *Table) ExpireLogs(ctx context.Context, retention time.Duration) (deltalog.ExpireMetrics, error) {
	if retention == 0 {
		snap, err := t.log.Snapshot(ctx)
		if err != nil {
			return deltalog.ExpireMetrics{}, err
		}
		retention = snap.RetentionProperty(deltalog.PropLogRetention, deltalog.DefaultLogRetention)
	}
	return t.log.ExpireLogs(ctx, retention, time.Now())
}
