// Package commitlock serializes table commits through a Postgres lease so
// writers on stores without an atomic create, like S3, cannot clobber each
// other's commit files.
package commitlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/UltimateTournament/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lsjoeberg/deltactl/gologger"
	"github.com/lsjoeberg/deltactl/utils"
)

var (
	logger = gologger.NewLogger()

	ErrLockHeld = errors.New("commit lock held by another owner")
)

const (
	DefaultLeaseDuration = 30 * time.Second
	execTimeout          = 10 * time.Second
)

type Lock struct {
	pool     *pgxpool.Pool
	tableURI string
	lease    time.Duration
}

// Connect opens the lock database pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	logger.Debug().Msg("connecting to lock DB...")
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ParseConfig: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ConnectConfig: %w", err)
	}
	logger.Debug().Msg("connected to lock DB")
	return pool, nil
}

// New returns a lock scoped to one table URI. lease bounds how long a
// crashed holder can block other writers, DefaultLeaseDuration when zero.
func New(pool *pgxpool.Pool, tableURI string, lease time.Duration) *Lock {
	if lease <= 0 {
		lease = DefaultLeaseDuration
	}
	return &Lock{
		pool:     pool,
		tableURI: tableURI,
		lease:    lease,
	}
}

// Acquire takes the lease, waiting with backoff while another owner holds
// it. The returned func releases the lease.
func (l *Lock) Acquire(ctx context.Context) (func() error, error) {
	owner := utils.GenRandomShortID()

	boff := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		err := l.tryAcquire(ctx, owner)
		if errors.Is(err, ErrLockHeld) || isSerializationErr(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, boff)
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock for %s: %w", l.tableURI, err)
	}

	logger.Debug().Str("owner", owner).Str("tableURI", l.tableURI).Msg("acquired commit lock")
	return func() error {
		return l.release(owner)
	}, nil
}

func (l *Lock) tryAcquire(ctx context.Context, owner string) error {
	return utils.ReliableExecInTx(ctx, l.pool, execTimeout, func(ctx context.Context, tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			INSERT INTO commit_locks (table_uri, owner, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (table_uri) DO UPDATE SET owner = $2, expires_at = $3
			WHERE commit_locks.expires_at < now() OR commit_locks.owner = $2
		`, l.tableURI, owner, time.Now().Add(l.lease))
		if err != nil {
			return fmt.Errorf("error upserting lock row: %w", err)
		}
		if ct.RowsAffected() == 0 {
			var expiresAt pgtype.Timestamptz
			err := tx.QueryRow(ctx, `
				SELECT expires_at FROM commit_locks WHERE table_uri = $1
			`, l.tableURI).Scan(&expiresAt)
			if err != nil && err != pgx.ErrNoRows {
				return fmt.Errorf("error reading lock holder: %w", err)
			}
			logger.Debug().Str("tableURI", l.tableURI).Time("expiresAt", expiresAt.Time).Msg("lock held, waiting")
			return ErrLockHeld
		}
		return nil
	})
}

func (l *Lock) release(owner string) error {
	return utils.ReliableExec(context.Background(), l.pool, execTimeout, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
			DELETE FROM commit_locks WHERE table_uri = $1 AND owner = $2
		`, l.tableURI, owner)
		if err != nil {
			return fmt.Errorf("error deleting lock row: %w", err)
		}
		return nil
	})
}

// isSerializationErr reports retryable write conflicts: unique violations
// from concurrent inserts and serialization failures.
func isSerializationErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" || pgErr.Code == "40001"
	}
	return false
}
