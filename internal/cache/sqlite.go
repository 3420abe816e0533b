package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLiteStore persists cache entries in the service database so warm results
// survive process restarts. Expired rows are ignored on read and reaped
// lazily on write.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a Store backed by the given database. The schema is
// created by storage.NewDatabase at startup.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	// Opportunistic reaping keeps the table from accumulating dead rows
	// without needing a background sweeper.
	_, _ = s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", now)
	return nil
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\\'",
		escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("clearing cache prefix %q: %w", prefix, err)
	}
	return res.RowsAffected()
}

// escapeLike escapes LIKE wildcards so a literal prefix can't match more
// than intended.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
