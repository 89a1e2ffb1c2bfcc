package deltalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lsjoeberg/deltactl/parquet_accumulator"
	"github.com/xitongsys/parquet-go/writer"
)

type (
	// LastCheckpoint is the content of `_delta_log/_last_checkpoint`.
	LastCheckpoint struct {
		Version int64 `json:"version"`
		Size    int64 `json:"size"`
	}
)

// checkpointActions flattens a snapshot into the action set a checkpoint
// carries: protocol, metadata, app transactions, active files and
// unexpired tombstones, in that order.
func (s *Snapshot) checkpointActions() []Action {
	var actions []Action
	if s.Protocol != nil {
		actions = append(actions, Action{Protocol: s.Protocol})
	}
	if s.Metadata != nil {
		actions = append(actions, Action{Metadata: s.Metadata})
	}

	appIDs := make([]string, 0, len(s.AppTxns))
	for appID := range s.AppTxns {
		appIDs = append(appIDs, appID)
	}
	sort.Strings(appIDs)
	for _, appID := range appIDs {
		actions = append(actions, Action{Txn: &Txn{AppID: appID, Version: s.AppTxns[appID]}})
	}

	paths := make([]string, 0, len(s.Files))
	for path := range s.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		add := s.Files[path]
		actions = append(actions, Action{Add: &add})
	}

	paths = paths[:0]
	for path := range s.Tombstones {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		rm := s.Tombstones[path]
		actions = append(actions, Action{Remove: &rm})
	}
	return actions
}

// WriteCheckpoint materializes the current snapshot as a parquet checkpoint
// at the snapshot version and updates `_last_checkpoint`.
func (l *Log) WriteCheckpoint(ctx context.Context) (LastCheckpoint, error) {
	var lc LastCheckpoint

	snap, err := l.Snapshot(ctx)
	if err != nil {
		return lc, err
	}

	actions := snap.checkpointActions()
	accumulator := parquet_accumulator.NewParquetAccumulator()
	rows := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		raw, err := json.Marshal(a)
		if err != nil {
			return lc, fmt.Errorf("error in json.Marshal of action: %w", err)
		}
		row := map[string]any{
			"tag": actionTag(a),
			"raw": string(raw),
		}
		// denormalized file columns make checkpoints greppable with
		// plain parquet tools
		if a.Add != nil {
			row["path"] = a.Add.Path
			row["size"] = a.Add.Size
		} else if a.Remove != nil {
			row["path"] = a.Remove.Path
			row["size"] = a.Remove.Size
		}
		accumulator.WriteRow(row)
		rows = append(rows, row)
	}

	parquetSchema, err := accumulator.GetSchemaString()
	if err != nil {
		return lc, fmt.Errorf("error getting schema string: %w", err)
	}

	var b bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(parquetSchema, &b, 4)
	if err != nil {
		return lc, fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}
	for _, row := range rows {
		rowBytes, err := json.Marshal(row)
		if err != nil {
			return lc, fmt.Errorf("error in json.Marshal of row: %w", err)
		}
		if err := pw.Write(rowBytes); err != nil {
			return lc, fmt.Errorf("error in pw.Write for row %s: %w", string(rowBytes), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return lc, fmt.Errorf("error in pw.WriteStop: %w", err)
	}

	s := time.Now()
	if err := l.store.Put(ctx, CheckpointPath(snap.Version), b.Bytes()); err != nil {
		return lc, fmt.Errorf("error writing checkpoint %d: %w", snap.Version, err)
	}

	lc = LastCheckpoint{
		Version: snap.Version,
		Size:    int64(len(actions)),
	}
	lcBytes, err := json.Marshal(lc)
	if err != nil {
		return lc, fmt.Errorf("error in json.Marshal of last checkpoint: %w", err)
	}
	if err := l.store.Put(ctx, lastCheckpointPath, lcBytes); err != nil {
		return lc, fmt.Errorf("error writing last checkpoint pointer: %w", err)
	}

	logger.Debug().Int64("version", snap.Version).Int64("actions", lc.Size).Msgf("wrote checkpoint in %s", time.Since(s))
	return lc, nil
}

func actionTag(a Action) string {
	switch {
	case a.Protocol != nil:
		return "protocol"
	case a.Metadata != nil:
		return "metaData"
	case a.Add != nil:
		return "add"
	case a.Remove != nil:
		return "remove"
	case a.Txn != nil:
		return "txn"
	case a.CommitInfo != nil:
		return "commitInfo"
	}
	return "unknown"
}

// LastCheckpointPointer reads `_last_checkpoint` if present.
func (l *Log) LastCheckpointPointer(ctx context.Context) (*LastCheckpoint, error) {
	data, err := l.store.Get(ctx, lastCheckpointPath)
	if err != nil {
		return nil, err
	}
	var lc LastCheckpoint
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal of last checkpoint: %w", err)
	}
	return &lc, nil
}

func (l *Log) readCheckpoint(ctx context.Context, version int64) ([]Action, error) {
	data, err := l.store.Get(ctx, CheckpointPath(version))
	if err != nil {
		return nil, fmt.Errorf("error getting checkpoint file: %w", err)
	}
	rows, err := ReadParquetRows(data)
	if err != nil {
		return nil, err
	}
	var actions []Action
	for _, row := range rows {
		raw, ok := row["raw"].(string)
		if !ok {
			return nil, fmt.Errorf("checkpoint row missing raw action: %+v", row)
		}
		var a Action
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("error in json.Unmarshal of checkpoint action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
