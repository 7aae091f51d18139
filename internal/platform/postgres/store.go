package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/platform/logger"
	"github.com/phrazzld/studycache/internal/platform/migrations"
	"github.com/phrazzld/studycache/internal/store"
)

const entity = "cache_entry"

// PostgresEntryStore implements store.EntryStore on PostgreSQL.
type PostgresEntryStore struct {
	db *sql.DB
}

var _ store.EntryStore = (*PostgresEntryStore)(nil)

// NewPostgresEntryStore wraps an already migrated database handle.
func NewPostgresEntryStore(db *sql.DB) *PostgresEntryStore {
	return &PostgresEntryStore{db: db}
}

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*PostgresEntryStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", MapError(err))
	}
	if err := migrations.Up(ctx, db, migrations.Postgres, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewPostgresEntryStore(db), nil
}

// DB exposes the underlying handle for migrations tooling.
func (s *PostgresEntryStore) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *PostgresEntryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get loads an entry by key.
func (s *PostgresEntryStore) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, version, payload, written_at FROM query_cache WHERE cache_key = $1`,
		key,
	).Scan(&e.Key, &e.Version, &e.Payload, &e.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEntryNotFound
		}
		return nil, store.NewStoreError(entity, "get", "failed to read entry", MapError(err))
	}
	return &e, nil
}

// PutIfNewer upserts the entry unless the stored copy is at least as new.
func (s *PostgresEntryStore) PutIfNewer(ctx context.Context, entry *domain.CacheEntry) (bool, error) {
	log := logger.FromContext(ctx)

	if err := entry.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO query_cache (cache_key, version, payload, written_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE SET
			version = EXCLUDED.version,
			payload = EXCLUDED.payload,
			written_at = EXCLUDED.written_at
		WHERE query_cache.written_at < EXCLUDED.written_at`,
		entry.Key, entry.Version, entry.Payload, entry.Timestamp,
	)
	if err != nil {
		log.Error("failed to upsert cache entry", "key", entry.Key, "error", err)
		return false, store.NewStoreError(entity, "put", "failed to upsert entry", MapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, store.NewStoreError(entity, "put", "failed to read rows affected", err)
	}
	return n > 0, nil
}

// GetAll returns every entry ordered by key.
func (s *PostgresEntryStore) GetAll(ctx context.Context) ([]*domain.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, version, payload, written_at FROM query_cache ORDER BY cache_key COLLATE "C"`,
	)
	if err != nil {
		return nil, store.NewStoreError(entity, "list", "failed to query entries", MapError(err))
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
		return nil, store.NewStoreError(entity, "list", "failed to iterate entries", MapError(err))
	}
	return entries, nil
}

// Delete removes the given keys in one statement.
func (s *PostgresEntryStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	var removed int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM query_cache WHERE cache_key = ANY($1)`, keys)
		if err != nil {
			return MapError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, store.NewStoreError(entity, "delete", "failed to delete entries", err)
	}
	return removed, nil
}

// Clear removes every entry.
func (s *PostgresEntryStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_cache`)
	if err != nil {
		return 0, store.NewStoreError(entity, "clear", "failed to delete entries", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError(entity, "clear", "failed to read rows affected", err)
	}
	return int(n), nil
}

// Size reports the on-disk size of the cache table including indexes and TOAST.
func (s *PostgresEntryStore) Size(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT pg_total_relation_size('query_cache')`,
	).Scan(&size)
	if err != nil {
		return 0, store.NewStoreError(entity, "size", "failed to read table size", MapError(err))
	}
	return size, nil
}
