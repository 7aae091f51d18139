package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/phrazzld/studycache/internal/store"
	"github.com/phrazzld/studycache/internal/store/storetest"
	"github.com/phrazzld/studycache/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEntryStoreContract(t *testing.T) {
	db := testdb.Open(t)
	url := testdb.DatabaseURL()

	// Each subtest closes its store, so each gets its own pool.
	storetest.RunEntryStoreTests(t, func(t *testing.T) store.EntryStore {
		testdb.Reset(t, db)
		s, err := Open(context.Background(), url, nil)
		require.NoError(t, err)
		return s
	})
}

func TestOpenAppliesMigrations(t *testing.T) {
	url := testdb.SkipIfUnavailable(t)
	ctx := context.Background()

	s, err := Open(ctx, url, nil)
	require.NoError(t, err)
	defer s.Close()

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestNotNullViolationMapsToInvalidEntity(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		_, err := tx.ExecContext(context.Background(),
			`INSERT INTO query_cache (cache_key, version, payload, written_at) VALUES ($1, NULL, $2, $3)`,
			`["topics"]`, []byte(`{}`), int64(1))
		require.Error(t, err)
		assert.True(t, IsNotNullViolation(err))
		assert.ErrorIs(t, MapError(err), store.ErrInvalidEntity)
	})
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	require.Error(t, err)
}
