package deltalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/lsjoeberg/deltactl/gologger"
	"github.com/lsjoeberg/deltactl/objstore"
)

var logger = gologger.NewLogger()

const (
	LogDir             = "_delta_log"
	lastCheckpointPath = LogDir + "/_last_checkpoint"
)

var (
	ErrNotATable       = errors.New("no delta log found, not a delta table")
	ErrVersionConflict = errors.New("commit version already exists")

	commitRegex     = regexp.MustCompile(`^_delta_log/(\d{20})\.json$`)
	checkpointRegex = regexp.MustCompile(`^_delta_log/(\d{20})\.checkpoint\.parquet$`)
)

type (
	// Locker serializes commits on stores without an atomic
	// create-if-absent primitive. Acquire blocks until the lock is held and
	// returns a release func.
	Locker interface {
		Acquire(ctx context.Context) (release func() error, err error)
	}

	Log struct {
		store objstore.Store
		lock  Locker
	}

	// logEntry is one parsed `_delta_log/` listing.
	logEntry struct {
		Version int64
		Info    objstore.ObjectInfo
	}

	logListing struct {
		Commits     []logEntry
		Checkpoints []logEntry
	}
)

// New returns a Log over store. lock may be nil when the store provides
// atomic PutIfAbsent on its own, like local disk.
func New(store objstore.Store, lock Locker) *Log {
	return &Log{
		store: store,
		lock:  lock,
	}
}

func CommitPath(version int64) string {
	return fmt.Sprintf("%s/%020d.json", LogDir, version)
}

func CheckpointPath(version int64) string {
	return fmt.Sprintf("%s/%020d.checkpoint.parquet", LogDir, version)
}

func (l *Log) list(ctx context.Context) (logListing, error) {
	var listing logListing
	objects, err := l.store.List(ctx, LogDir+"/")
	if err != nil {
		return listing, fmt.Errorf("error listing log dir: %w", err)
	}
	for _, obj := range objects {
		if m := commitRegex.FindStringSubmatch(obj.Key); m != nil {
			listing.Commits = append(listing.Commits, logEntry{
				Version: mustParseVersion(m[1]),
				Info:    obj,
			})
			continue
		}
		if m := checkpointRegex.FindStringSubmatch(obj.Key); m != nil {
			listing.Checkpoints = append(listing.Checkpoints, logEntry{
				Version: mustParseVersion(m[1]),
				Info:    obj,
			})
		}
	}
	sort.Slice(listing.Commits, func(i, j int) bool {
		return listing.Commits[i].Version < listing.Commits[j].Version
	})
	sort.Slice(listing.Checkpoints, func(i, j int) bool {
		return listing.Checkpoints[i].Version < listing.Checkpoints[j].Version
	})
	return listing, nil
}

func mustParseVersion(s string) int64 {
	// zero-padded decimal, already matched by regex
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// LatestVersion returns the highest commit version in the log.
func (l *Log) LatestVersion(ctx context.Context) (int64, error) {
	listing, err := l.list(ctx)
	if err != nil {
		return 0, err
	}
	if len(listing.Commits) == 0 {
		return 0, ErrNotATable
	}
	return listing.Commits[len(listing.Commits)-1].Version, nil
}

// ReadCommit fetches and parses a single commit file.
func (l *Log) ReadCommit(ctx context.Context, version int64) ([]Action, error) {
	data, err := l.store.Get(ctx, CommitPath(version))
	if err != nil {
		return nil, fmt.Errorf("error getting commit %d: %w", version, err)
	}
	actions, err := UnmarshalCommit(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing commit %d: %w", version, err)
	}
	return actions, nil
}

// Commit writes actions as commit file `version`, failing with
// ErrVersionConflict when that version already exists. When a Locker is
// configured the put-if-absent check runs under the lock.
func (l *Log) Commit(ctx context.Context, version int64, actions []Action) error {
	data, err := MarshalCommit(actions)
	if err != nil {
		return fmt.Errorf("error marshaling commit: %w", err)
	}

	if l.lock != nil {
		release, err := l.lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("error acquiring commit lock: %w", err)
		}
		defer func() {
			if err := release(); err != nil {
				logger.Error().Err(err).Msg("error releasing commit lock")
			}
		}()
	}

	s := time.Now()
	err = l.store.PutIfAbsent(ctx, CommitPath(version), data)
	if errors.Is(err, objstore.ErrObjectExists) {
		return fmt.Errorf("commit %d: %w", version, ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("error writing commit %d: %w", version, err)
	}
	logger.Debug().Int64("version", version).Msgf("committed in %s", time.Since(s))
	return nil
}
