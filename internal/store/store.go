// Package store is the persistent envelope store backing the disk
// EnvelopeStack and StackProvider. It is driver-neutral over database/sql:
// Open selects mattn/go-sqlite3 for a bare file path and lib/pq for a
// postgres:// DSN, following the split in the reference corpus between
// services/control-plane/aggregator (which opens sqlite directly with a
// WAL pragma DSN) and services/storage/internal/relational (which takes a
// pre-opened *sql.DB and never imports a driver itself).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Row is one persisted envelope.
type Row struct {
	Seq         int64
	OwnKey      string
	SamplingKey string
	ReceivedAt  time.Time
	SizeBytes   int
	Payload     []byte
}

// Store is the persistent envelope store. All methods are safe for
// concurrent use by a single EnvelopeBuffer, but the buffer's own
// single-owner model means they are in practice called sequentially.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens dsn, selecting the driver by scheme: a "postgres://" or
// "postgresql://" prefix selects lib/pq; anything else is treated as a
// sqlite file path and opened with the WAL/busy-timeout pragmas the
// aggregator service uses for a single-writer embedded database.
func Open(dsn string) (*Store, error) {
	driver := "sqlite3"
	open := dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	} else {
		open = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON", dsn)
	}
	db, err := sql.Open(driver, open)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, driver: driver}, nil
}

// InitSchema creates the envelopes table if it does not already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS envelopes (
		seq %s,
		own_key TEXT NOT NULL,
		sampling_key TEXT NOT NULL,
		received_at %s NOT NULL,
		size_bytes INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`
	idx := `CREATE INDEX IF NOT EXISTS envelopes_pair_seq ON envelopes (own_key, sampling_key, seq)`
	if s.driver == "postgres" {
		ddl = fmt.Sprintf(ddl, "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ")
	} else {
		ddl = fmt.Sprintf(ddl, "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME")
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("store: create index: %w", err)
	}
	return nil
}

// Push appends a row to the tail of a pair's stack.
func (s *Store) Push(ctx context.Context, ownKey, samplingKey string, receivedAt time.Time, sizeBytes int, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO envelopes (own_key, sampling_key, received_at, size_bytes, payload) VALUES ($1, $2, $3, $4, $5)`,
		ownKey, samplingKey, receivedAt, sizeBytes, payload)
	if err != nil {
		return fmt.Errorf("store: push: %w", err)
	}
	return nil
}

// PopMany returns the most recent n rows for a pair, highest seq first
// (LIFO order), and deletes them from the store. It is used by
// DiskStack.refill to pull a batch of the tail back into memory.
func (s *Store) PopMany(ctx context.Context, ownKey, samplingKey string, n int) ([]Row, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT seq, received_at, size_bytes, payload FROM envelopes
		 WHERE own_key = $1 AND sampling_key = $2 ORDER BY seq DESC LIMIT $3`,
		ownKey, samplingKey, n)
	if err != nil {
		return nil, fmt.Errorf("store: select: %w", err)
	}
	var result []Row
	var seqs []int64
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Seq, &r.ReceivedAt, &r.SizeBytes, &r.Payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		r.OwnKey, r.SamplingKey = ownKey, samplingKey
		result = append(result, r)
		seqs = append(seqs, r.Seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	rows.Close()

	for _, seq := range seqs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM envelopes WHERE seq = $1`, seq); err != nil {
			return nil, fmt.Errorf("store: delete: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return result, nil
}

// CountForPair returns the number of rows currently stored for a pair.
func (s *Store) CountForPair(ctx context.Context, ownKey, samplingKey string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM envelopes WHERE own_key = $1 AND sampling_key = $2`,
		ownKey, samplingKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count for pair: %w", err)
	}
	return n, nil
}

// TotalCount returns the number of rows across all pairs.
func (s *Store) TotalCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM envelopes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: total count: %w", err)
	}
	return n, nil
}

// TotalBytes returns the sum of size_bytes across all rows.
func (s *Store) TotalBytes(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(size_bytes) FROM envelopes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: total bytes: %w", err)
	}
	return n.Int64, nil
}

// DistinctPairs returns every (own_key, sampling_key) pair with at least
// one surviving row, used by DiskStackProvider.Initialize to rebuild the
// reverse index after a restart.
func (s *Store) DistinctPairs(ctx context.Context) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT own_key, sampling_key FROM envelopes`)
	if err != nil {
		return nil, fmt.Errorf("store: distinct pairs: %w", err)
	}
	defer rows.Close()
	var pairs [][2]string
	for rows.Next() {
		var own, sampling string
		if err := rows.Scan(&own, &sampling); err != nil {
			return nil, fmt.Errorf("store: scan pair: %w", err)
		}
		pairs = append(pairs, [2]string{own, sampling})
	}
	return pairs, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
