package objectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// PostgresStore implements Store on a single key/value/version table, using a
// conditional UPDATE as the optimistic-concurrency primitive.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and runs its migration.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS caseflow_kv (
        key TEXT PRIMARY KEY,
        value BYTEA NOT NULL,
        version BIGINT NOT NULL DEFAULT 1,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, Version, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value, version FROM caseflow_kv WHERE key = $1`, key)

	var value []byte
	var version int64
	if err := row.Scan(&value, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, VersionNone, ErrNotFound
		}
		return nil, VersionNone, fmt.Errorf("%w: pg get %s: %v", ErrUnavailable, key, err)
	}
	return value, Version(strconv.FormatInt(version, 10)), nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte, expected Version) (Version, error) {
	switch expected {
	case VersionAny:
		row := s.db.QueryRowContext(ctx, `
            INSERT INTO caseflow_kv (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = $2, version = caseflow_kv.version + 1, updated_at = now()
            RETURNING version`, key, data)
		var version int64
		if err := row.Scan(&version); err != nil {
			return VersionNone, fmt.Errorf("%w: pg put %s: %v", ErrUnavailable, key, err)
		}
		return Version(strconv.FormatInt(version, 10)), nil

	case VersionNone:
		res, err := s.db.ExecContext(ctx, `
            INSERT INTO caseflow_kv (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO NOTHING`, key, data)
		if err != nil {
			return VersionNone, fmt.Errorf("%w: pg create %s: %v", ErrUnavailable, key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return VersionNone, fmt.Errorf("%w: pg create %s: %v", ErrUnavailable, key, err)
		}
		if n == 0 {
			return VersionNone, ErrConditionFailed
		}
		return Version("1"), nil

	default:
		want, err := strconv.ParseInt(string(expected), 10, 64)
		if err != nil {
			return VersionNone, fmt.Errorf("pg put %s: bad version %q", key, expected)
		}
		row := s.db.QueryRowContext(ctx, `
            UPDATE caseflow_kv SET value = $2, version = version + 1, updated_at = now()
            WHERE key = $1 AND version = $3
            RETURNING version`, key, data, want)
		var version int64
		if err := row.Scan(&version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return VersionNone, ErrConditionFailed
			}
			return VersionNone, fmt.Errorf("%w: pg put %s: %v", ErrUnavailable, key, err)
		}
		return Version(strconv.FormatInt(version, 10)), nil
	}
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM caseflow_kv WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: pg list %s: %v", ErrUnavailable, prefix, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
