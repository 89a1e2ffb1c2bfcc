package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lsjoeberg/deltactl/deltalog"
	"github.com/lsjoeberg/deltactl/filter"
	"github.com/lsjoeberg/deltactl/parquet_accumulator"
	"github.com/lsjoeberg/deltactl/partitioner"
	"github.com/lsjoeberg/deltactl/utils"
	"github.com/xitongsys/parquet-go/writer"
)

// DefaultTargetSize is the post-rewrite file size optimize aims for.
const DefaultTargetSize = 256 * 1024 * 1024

type (
	OptimizeOptions struct {
		// TargetSize in bytes, DefaultTargetSize when zero
		TargetSize int64
		// MaxConcurrentTasks bounds parallel bin rewrites, NumCPU when zero
		MaxConcurrentTasks int
		// MinCommitInterval splits the rewrite into periodic commits so
		// long optimizes publish progress, zero commits once at the end
		MinCommitInterval time.Duration
		// PreserveInsertionOrder reads the files of a bin oldest first so
		// rewritten rows keep their insertion order
		PreserveInsertionOrder bool
		// Filters restricts the rewrite to matching partitions
		Filters []filter.Condition
	}

	OptimizeMetrics struct {
		NumFilesAdded          int64 `json:"numFilesAdded"`
		NumFilesRemoved        int64 `json:"numFilesRemoved"`
		PartitionsOptimized    int64 `json:"partitionsOptimized"`
		NumBatches             int64 `json:"numBatches"`
		TotalConsideredFiles   int64 `json:"totalConsideredFiles"`
		TotalFilesSkipped      int64 `json:"totalFilesSkipped"`
		RowsRewritten          int64 `json:"rowsRewritten"`
		PreserveInsertionOrder bool  `json:"preserveInsertionOrder"`
		TimeMS                 int64 `json:"timeMs"`
	}

	// bin is a set of files in one partition rewritten into a single file.
	bin struct {
		partitionPath   string
		partitionValues map[string]string
		files           []deltalog.Add
		size            int64
	}

	binResult struct {
		bin  *bin
		add  deltalog.Add
		rows int64
		err  error
	}
)

// Compact rewrites small files into files close to the target size.
func (t *Table) Compact(ctx context.Context, opts OptimizeOptions) (OptimizeMetrics, error) {
	return t.optimize(ctx, opts, nil)
}

// ZOrder rewrites whole partitions with rows reordered along the z-order
// curve over columns, so scans filtering on those columns touch fewer files.
func (t *Table) ZOrder(ctx context.Context, columns []string, opts OptimizeOptions) (OptimizeMetrics, error) {
	if len(columns) == 0 {
		return OptimizeMetrics{}, fmt.Errorf("z-order requires at least one column")
	}
	return t.optimize(ctx, opts, columns)
}

func (t *Table) optimize(ctx context.Context, opts OptimizeOptions, zorderColumns []string) (OptimizeMetrics, error) {
	var metrics OptimizeMetrics
	start := time.Now()

	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultTargetSize
	}
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = runtime.NumCPU()
	}
	metrics.PreserveInsertionOrder = opts.PreserveInsertionOrder

	snap, err := t.log.Snapshot(ctx)
	if err != nil {
		return metrics, err
	}
	if snap.Metadata == nil {
		return metrics, fmt.Errorf("table %s has no metadata action", t.uri)
	}
	partitionColumns := snap.Metadata.PartitionColumns
	for _, col := range zorderColumns {
		if utils.ContainsString(partitionColumns, col) {
			return metrics, fmt.Errorf("cannot z-order on partition column %s", col)
		}
	}

	groups := map[string][]deltalog.Add{}
	for _, add := range snap.Files {
		if !partitioner.Matches(add.PartitionValues, opts.Filters) {
			continue
		}
		metrics.TotalConsideredFiles++
		path, err := partitioner.Path(add.PartitionValues, partitionColumns)
		if err != nil {
			return metrics, fmt.Errorf("error in partitioner.Path for %s: %w", add.Path, err)
		}
		groups[path] = append(groups[path], add)
	}

	var bins []*bin
	for path, files := range groups {
		values := map[string]string{}
		if len(files) > 0 {
			values = files[0].PartitionValues
		}
		partitionBins, skipped := planBins(path, values, files, opts.TargetSize, zorderColumns != nil)
		metrics.TotalFilesSkipped += skipped
		if len(partitionBins) > 0 {
			metrics.PartitionsOptimized++
			bins = append(bins, partitionBins...)
		}
	}
	if len(bins) == 0 {
		metrics.TimeMS = time.Since(start).Milliseconds()
		return metrics, nil
	}

	// deterministic rewrite order
	sort.Slice(bins, func(i, j int) bool {
		if bins[i].partitionPath != bins[j].partitionPath {
			return bins[i].partitionPath < bins[j].partitionPath
		}
		return bins[i].files[0].Path < bins[j].files[0].Path
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan binResult)
	sem := make(chan struct{}, opts.MaxConcurrentTasks)
	var wg sync.WaitGroup
	for _, b := range bins {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				results <- binResult{bin: b, err: runCtx.Err()}
				return
			}
			defer func() { <-sem }()
			add, rows, err := t.rewriteBin(runCtx, b, zorderColumns, opts.PreserveInsertionOrder)
			results <- binResult{bin: b, add: add, rows: rows, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	operation := "OPTIMIZE"
	parameters := map[string]any{
		"targetSize": opts.TargetSize,
	}
	if zorderColumns != nil {
		parameters["zOrderBy"] = zorderColumns
	}
	if len(opts.Filters) > 0 {
		var predicates []string
		for _, c := range opts.Filters {
			predicates = append(predicates, c.String())
		}
		parameters["predicate"] = predicates
	}

	var pending []deltalog.Action
	var pendingRemoves []string
	lastCommit := time.Now()
	var firstErr error

	commitPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		actions := append([]deltalog.Action{{CommitInfo: commitInfo(operation, parameters)}}, pending...)
		removes := pendingRemoves
		_, err := t.commit(ctx, actions, func(s *deltalog.Snapshot) error {
			for _, path := range removes {
				if _, ok := s.Files[path]; !ok {
					return fmt.Errorf("file %s was removed concurrently: %w", path, ErrConcurrentModification)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		metrics.NumBatches++
		pending = nil
		pendingRemoves = nil
		lastCommit = time.Now()
		return nil
	}

	for res := range results {
		if res.err != nil {
			if firstErr == nil && !errors.Is(res.err, context.Canceled) {
				firstErr = res.err
			}
			cancel()
			continue
		}
		if firstErr != nil {
			continue
		}
		pending = append(pending, deltalog.Action{Add: utils.Ptr(res.add)})
		now := time.Now().UnixMilli()
		for _, old := range res.bin.files {
			old := old
			pending = append(pending, deltalog.Action{Remove: &deltalog.Remove{
				Path:              old.Path,
				DeletionTimestamp: now,
				DataChange:        false,
				PartitionValues:   old.PartitionValues,
				Size:              old.Size,
			}})
			pendingRemoves = append(pendingRemoves, old.Path)
		}
		metrics.NumFilesAdded++
		metrics.NumFilesRemoved += int64(len(res.bin.files))
		metrics.RowsRewritten += res.rows

		if opts.MinCommitInterval > 0 && time.Since(lastCommit) >= opts.MinCommitInterval {
			if err := commitPending(); err != nil {
				firstErr = err
				cancel()
			}
		}
	}
	if firstErr != nil {
		return metrics, firstErr
	}
	if err := commitPending(); err != nil {
		return metrics, err
	}

	metrics.TimeMS = time.Since(start).Milliseconds()
	logger.Debug().Interface("metrics", metrics).Msg("optimized table")
	return metrics, nil
}

// planBins packs files into target-size bins. Compaction only rewrites bins
// with at least two files below the target size, z-order rewrites every
// file in the partition.
func planBins(path string, values map[string]string, files []deltalog.Add, targetSize int64, zorder bool) ([]*bin, int64) {
	if zorder {
		b := &bin{partitionPath: path, partitionValues: values}
		for _, f := range files {
			b.files = append(b.files, f)
			b.size += f.Size
		}
		if len(b.files) == 0 {
			return nil, 0
		}
		return []*bin{b}, 0
	}

	var candidates []deltalog.Add
	var skipped int64
	for _, f := range files {
		if f.Size >= targetSize {
			skipped++
			continue
		}
		candidates = append(candidates, f)
	}
	// first fit decreasing
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Size > candidates[j].Size })

	var bins []*bin
	for _, f := range candidates {
		placed := false
		for _, b := range bins {
			if b.size+f.Size <= targetSize {
				b.files = append(b.files, f)
				b.size += f.Size
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, &bin{
				partitionPath:   path,
				partitionValues: values,
				files:           []deltalog.Add{f},
				size:            f.Size,
			})
		}
	}

	merged := bins[:0]
	for _, b := range bins {
		if len(b.files) < 2 {
			skipped += int64(len(b.files))
			continue
		}
		merged = append(merged, b)
	}
	return merged, skipped
}

// rewriteBin reads every file in the bin, optionally reorders the rows
// along the z-order curve and writes the result as a single new file.
func (t *Table) rewriteBin(ctx context.Context, b *bin, zorderColumns []string, preserveOrder bool) (deltalog.Add, int64, error) {
	var add deltalog.Add

	files := b.files
	if preserveOrder {
		// bin packing sorts files by size, read oldest first instead
		files = append([]deltalog.Add(nil), b.files...)
		sort.Slice(files, func(i, j int) bool {
			if files[i].ModificationTime != files[j].ModificationTime {
				return files[i].ModificationTime < files[j].ModificationTime
			}
			return files[i].Path < files[j].Path
		})
	}

	accumulator := parquet_accumulator.NewParquetAccumulator()
	var rows []map[string]any
	for _, f := range files {
		st := time.Now()
		data, err := t.store.Get(ctx, f.Path)
		if err != nil {
			return add, 0, fmt.Errorf("error getting file %s: %w", f.Path, err)
		}
		fileRows, err := deltalog.ReadParquetRows(data)
		if err != nil {
			return add, 0, fmt.Errorf("error reading rows of %s: %w", f.Path, err)
		}
		for _, row := range fileRows {
			accumulator.WriteRow(row)
			rows = append(rows, row)
		}
		logger.Debug().Str("path", f.Path).Msgf("read %d rows in %s", len(fileRows), time.Since(st))
	}

	if len(zorderColumns) > 0 {
		sortByZOrder(rows, zorderColumns)
	}

	parquetSchema, err := accumulator.GetSchemaString()
	if err != nil {
		return add, 0, fmt.Errorf("error getting schema string: %w", err)
	}
	var buf bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(parquetSchema, &buf, 4)
	if err != nil {
		return add, 0, fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}
	for _, row := range rows {
		rowBytes, err := json.Marshal(row)
		if err != nil {
			return add, 0, fmt.Errorf("error in json.Marshal of row: %w", err)
		}
		if err := pw.Write(rowBytes); err != nil {
			return add, 0, fmt.Errorf("error in pw.Write for row %s: %w", string(rowBytes), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return add, 0, fmt.Errorf("error in pw.WriteStop: %w", err)
	}

	name := fmt.Sprintf("part-00001-%s-c000.snappy.parquet", uuid.NewString())
	if b.partitionPath != "" {
		name = b.partitionPath + "/" + name
	}
	if err := t.store.Put(ctx, name, buf.Bytes()); err != nil {
		return add, 0, fmt.Errorf("error writing file %s: %w", name, err)
	}

	add = deltalog.Add{
		Path:             name,
		PartitionValues:  b.partitionValues,
		Size:             int64(buf.Len()),
		ModificationTime: time.Now().UnixMilli(),
		DataChange:       false,
	}
	return add, int64(len(rows)), nil
}
