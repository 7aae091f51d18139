package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/studycache/internal/store"
	"github.com/phrazzld/studycache/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.RunEntryStoreTests(t, func(t *testing.T) store.EntryStore {
		return New()
	})
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := storetest.Entry("k", "v1", 1)
	_, err := s.PutIfNewer(ctx, e)
	require.NoError(t, err)

	e.Payload[0] = 'X'
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), got.Payload[0])
}

func TestSetFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")
	s.SetFailure(boom)

	_, err := s.PutIfNewer(ctx, storetest.Entry("k", "v1", 1))
	assert.ErrorIs(t, err, boom)
	var storeErr *store.StoreError
	assert.ErrorAs(t, err, &storeErr)

	s.SetFailure(nil)
	_, err = s.PutIfNewer(ctx, storetest.Entry("k", "v1", 1))
	assert.NoError(t, err)
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.GetAll(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}
