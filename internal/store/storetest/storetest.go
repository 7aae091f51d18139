// Package storetest provides a behavioural test suite that every
// store.EntryStore implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. The suite closes it when the test ends.
type Factory func(t *testing.T) store.EntryStore

// Entry builds a valid cache entry for tests.
func Entry(key, version string, ts int64) *domain.CacheEntry {
	return &domain.CacheEntry{
		Key:       key,
		Version:   version,
		Payload:   []byte(fmt.Sprintf(`{"key":%q,"ts":%d}`, key, ts)),
		Timestamp: ts,
	}
}

// RunEntryStoreTests exercises the EntryStore contract against stores
// produced by newStore.
func RunEntryStoreTests(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) store.EntryStore {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("get missing entry", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrEntryNotFound)
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("put and get", func(t *testing.T) {
		s := open(t)
		want := Entry(`["topics"]`, "v1", 1000)

		written, err := s.PutIfNewer(ctx, want)
		require.NoError(t, err)
		assert.True(t, written)

		got, err := s.Get(ctx, want.Key)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("entry mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejects invalid entry", func(t *testing.T) {
		s := open(t)
		_, err := s.PutIfNewer(ctx, &domain.CacheEntry{Key: "k"})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("only strictly newer writes replace", func(t *testing.T) {
		s := open(t)
		key := `["topic","a"]`

		written, err := s.PutIfNewer(ctx, Entry(key, "v1", 2000))
		require.NoError(t, err)
		require.True(t, written)

		older := Entry(key, "v1", 1000)
		written, err = s.PutIfNewer(ctx, older)
		require.NoError(t, err)
		assert.False(t, written, "older write must be ignored")

		same := Entry(key, "v2", 2000)
		written, err = s.PutIfNewer(ctx, same)
		require.NoError(t, err)
		assert.False(t, written, "equal timestamp must be ignored")

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), got.Timestamp)
		assert.Equal(t, "v1", got.Version)

		newer := Entry(key, "v2", 3000)
		written, err = s.PutIfNewer(ctx, newer)
		require.NoError(t, err)
		assert.True(t, written)

		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		if diff := cmp.Diff(newer, got); diff != "" {
			t.Errorf("entry mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("get all is ordered by key", func(t *testing.T) {
		s := open(t)
		for _, k := range []string{"c", "a", "b"} {
			_, err := s.PutIfNewer(ctx, Entry(k, "v1", 10))
			require.NoError(t, err)
		}

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		keys := make([]string, 0, len(all))
		for _, e := range all {
			keys = append(keys, e.Key)
		}
		assert.Equal(t, []string{"a", "b", "c"}, keys)
	})

	t.Run("delete ignores missing keys", func(t *testing.T) {
		s := open(t)
		for _, k := range []string{"a", "b", "c"} {
			_, err := s.PutIfNewer(ctx, Entry(k, "v1", 10))
			require.NoError(t, err)
		}

		n, err := s.Delete(ctx, "a", "c", "zzz")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "b", all[0].Key)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		s := open(t)
		for _, k := range []string{"a", "b"} {
			_, err := s.PutIfNewer(ctx, Entry(k, "v1", 10))
			require.NoError(t, err)
		}

		n, err := s.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("size is non-negative", func(t *testing.T) {
		s := open(t)
		_, err := s.PutIfNewer(ctx, Entry("a", "v1", 10))
		require.NoError(t, err)

		size, err := s.Size(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, size, int64(0))
	})

	t.Run("concurrent writers keep the newest", func(t *testing.T) {
		s := open(t)
		key := "contended"

		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(ts int64) {
				defer wg.Done()
				_, err := s.PutIfNewer(ctx, Entry(key, "v1", ts))
				assert.NoError(t, err)
			}(int64(i))
		}
		wg.Wait()

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.Timestamp)
	})
}
