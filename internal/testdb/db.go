package testdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/phrazzld/studycache/internal/platform/logger"
	"github.com/phrazzld/studycache/internal/platform/migrations"
	"github.com/phrazzld/studycache/internal/redact"
)

// SkipIfUnavailable skips t when no test database is configured and returns
// its URL otherwise.
func SkipIfUnavailable(t *testing.T) string {
	t.Helper()
	url := DatabaseURL()
	if url == "" {
		t.Skipf("%s not set; skipping PostgreSQL integration test", EnvDatabaseURL)
	}
	return url
}

// Open connects to the test database, applies migrations and empties the
// cache table. The connection is closed when t finishes. A database that is
// configured but unreachable fails the test.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	url := SkipIfUnavailable(t)

	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatalf("failed to open test database: %s", redact.Error(err))
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("test database unreachable (ci=%t): %s", IsCI(), redact.Error(err))
	}

	log, _ := logger.NewTestLogger(t)
	if err := migrations.Up(ctx, db, migrations.Postgres, log); err != nil {
		t.Fatalf("failed to migrate test database: %s", redact.Error(err))
	}
	Reset(t, db)
	return db
}

// Reset deletes every cache entry.
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), "DELETE FROM query_cache"); err != nil {
		t.Fatalf("failed to reset test database: %s", redact.Error(err))
	}
}

// WithTx runs fn inside a transaction that is always rolled back, so the
// statements fn issues never persist.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %s", redact.Error(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %s", redact.Error(err))
		}
	}()

	fn(t, tx)
}
