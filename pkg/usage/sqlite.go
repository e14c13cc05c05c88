package usage

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteUsageSchemaV1 = `
CREATE TABLE IF NOT EXISTS usage_counters (
    bucket TEXT NOT NULL,
    field TEXT NOT NULL,
    value REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (bucket, field)
);
`

// SQLiteStats persists counters in a SQLite database, one row per bucket and field.
type SQLiteStats struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var _ Stats = (*SQLiteStats)(nil)

func NewSQLiteStats(dsn string) (*SQLiteStats, error) {
	if dsn == "" {
		return nil, errors.New("sqlite usage stats: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStats{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStats) migrate() error {
	if _, err := s.db.Exec(sqliteUsageSchemaV1); err != nil {
		return errors.Wrap(err, "sqlite usage stats: migrate")
	}
	return nil
}

func (s *SQLiteStats) ensureOpen() error {
	if s.closed {
		return errors.New("sqlite usage stats: closed")
	}
	return nil
}

func (s *SQLiteStats) Increment(ctx context.Context, key string, fields map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for field, v := range fields {
		_, err := tx.ExecContext(ctx, `
INSERT INTO usage_counters (bucket, field, value) VALUES (?, ?, ?)
ON CONFLICT(bucket, field) DO UPDATE SET value = value + excluded.value
`, key, field, v)
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "sqlite usage stats: increment %s", field)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStats) Get(ctx context.Context, key string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM usage_counters WHERE bucket = ?`, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := map[string]float64{}
	for rows.Next() {
		var field string
		var value float64
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		ret[field] = value
	}
	return ret, rows.Err()
}

func (s *SQLiteStats) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
