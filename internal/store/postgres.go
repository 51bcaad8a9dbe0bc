// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS records (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore maps the KV contract onto a single versioned table. The
// conditional write is a plain UPDATE guarded by the version column, so
// linearization comes from the row lock.
type PostgresStore struct {
	db  *sqlx.DB
	sem *semaphore.Weighted
}

func NewPostgresStore(host, port, user, password, dbname, sslmode string) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sqlx.Connect("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate records table: %w", err)
	}

	return &PostgresStore{
		db:  db,
		sem: semaphore.NewWeighted(10),
	}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) acquire(ctx context.Context) (release func(), err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("could not acquire semaphore: %w", err)
	}
	return func() { s.sem.Release(1) }, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return Record{}, err
	}
	defer release()

	var rec Record
	row := s.db.QueryRowxContext(ctx, `SELECT key, value, version FROM records WHERE key = $1`, key)
	if err := row.Scan(&rec.Key, &rec.Value, &rec.Version); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, &TransientError{Err: err}
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, version) VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, version = records.version + 1, updated_at = now()`,
		key, value)
	if err != nil {
		return &TransientError{Err: err}
	}
	return nil
}

func (s *PostgresStore) ConditionalPut(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO records (key, value, version) VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING`, key, value)
		if err != nil {
			return 0, &TransientError{Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, &TransientError{Err: err}
		}
		if n == 0 {
			return 0, ErrConflict
		}
		return 1, nil
	}

	var newVersion int64
	row := s.db.QueryRowxContext(ctx, `
		UPDATE records
		SET value = $2, version = version + 1, updated_at = now()
		WHERE key = $1 AND version = $3
		RETURNING version`, key, value, expectedVersion)
	if err := row.Scan(&newVersion); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrConflict
		}
		return 0, &TransientError{Err: err}
	}
	return newVersion, nil
}

func (s *PostgresStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.QueryxContext(ctx,
		`SELECT key, value, version FROM records WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.Version); err != nil {
			return nil, &TransientError{Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Err: err}
	}
	return out, nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
}
