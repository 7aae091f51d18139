package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/platform/logger"
	"github.com/phrazzld/studycache/internal/platform/migrations"
	"github.com/phrazzld/studycache/internal/store"
	_ "modernc.org/sqlite"
)

const entity = "cache_entry"

// Store persists cache entries in a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ store.EntryStore = (*Store)(nil)

// Open opens (creating if needed) and migrates the database at path.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single connection: writers are serialised.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := migrations.Up(ctx, db, migrations.SQLite, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get loads an entry by key.
func (s *Store) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, version, payload, written_at FROM query_cache WHERE cache_key = ?`,
		key,
	)

	var e domain.CacheEntry
	if err := row.Scan(&e.Key, &e.Version, &e.Payload, &e.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEntryNotFound
		}
		return nil, store.NewStoreError(entity, "get", "failed to read entry", err)
	}
	return &e, nil
}

// PutIfNewer upserts the entry unless the stored copy is at least as new.
func (s *Store) PutIfNewer(ctx context.Context, entry *domain.CacheEntry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO query_cache (cache_key, version, payload, written_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		    version = excluded.version,
		    payload = excluded.payload,
		    written_at = excluded.written_at
		 WHERE query_cache.written_at < excluded.written_at`,
		entry.Key, entry.Version, entry.Payload, entry.Timestamp,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert cache entry", "key", entry.Key, "error", err)
		return false, store.NewStoreError(entity, "put", "failed to upsert entry", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, store.NewStoreError(entity, "put", "failed to read rows affected", err)
	}
	return n > 0, nil
}

// GetAll returns every entry ordered by key.
func (s *Store) GetAll(ctx context.Context) ([]*domain.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, version, payload, written_at FROM query_cache ORDER BY cache_key`,
	)
	if err != nil {
		return nil, store.NewStoreError(entity, "list", "failed to query entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		if err := rows.Scan(&e.Key, &e.Version, &e.Payload, &e.Timestamp); err != nil {
			return nil, store.NewStoreError(entity, "list", "failed to scan entry", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(entity, "list", "failed to iterate entries", err)
	}
	return entries, nil
}

// Delete removes the given keys in one transaction.
func (s *Store) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	var removed int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM query_cache WHERE cache_key = ?`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, key := range keys {
			res, err := stmt.ExecContext(ctx, key)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, store.NewStoreError(entity, "delete", "failed to delete entries", err)
	}
	return removed, nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_cache`)
	if err != nil {
		return 0, store.NewStoreError(entity, "clear", "failed to delete entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError(entity, "clear", "failed to read rows affected", err)
	}
	return int(n), nil
}

// Size reports the bytes held by live pages of the database file.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT (p.page_count - f.freelist_count) * s.page_size
		 FROM pragma_page_count() AS p, pragma_freelist_count() AS f, pragma_page_size() AS s`,
	).Scan(&size)
	if err != nil {
		return 0, store.NewStoreError(entity, "size", "failed to read database size", err)
	}
	return size, nil
}
