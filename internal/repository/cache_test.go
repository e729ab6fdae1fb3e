package repository

import (
	"context"
	"testing"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheWritesThroughAndReloads(t *testing.T) {
	store, _ := newTestStore([]string{"01.03.2025", "a", "1"})
	cache := NewCache(store)
	ctx := context.Background()

	require.NoError(t, cache.Reload(ctx))
	before := cache.Snapshot()
	assert.True(t, before.Available)
	assert.Equal(t, 1, before.Periods.Len())

	row, err := cache.Insert(ctx, ledger.NewTransaction(day(2, 3, 2025), "b", dec("2")))
	require.NoError(t, err)

	after := cache.Snapshot()
	assert.Equal(t, 2, after.Periods.Len())
	// the old snapshot is untouched
	assert.Equal(t, 1, before.Periods.Len())

	inserted, ok := cache.Snapshot().Periods.Find(row)
	require.True(t, ok)
	require.NoError(t, cache.Update(ctx, inserted, "bb", dec("3")))
	got, ok := cache.Snapshot().Periods.Find(row)
	require.True(t, ok)
	assert.Equal(t, "bb", got.Label)

	require.NoError(t, cache.Delete(ctx, got))
	_, ok = cache.Snapshot().Periods.Find(row)
	assert.False(t, ok)
}

func TestCacheRefreshesOnStaleWrite(t *testing.T) {
	store, table := newTestStore(
		[]string{"01.03.2025", "a", "1"},
		[]string{"02.03.2025", "b", "2"},
		[]string{"03.03.2025", "c", "3"},
	)
	cache := NewCache(store)
	ctx := context.Background()
	require.NoError(t, cache.Reload(ctx))

	b, ok := cache.Snapshot().Periods.Find(6)
	require.True(t, ok)
	// someone else removes row 5 straight in the sheet
	require.NoError(t, table.DeleteRow(ctx, 5))

	assert.ErrorIs(t, cache.Delete(ctx, b), ErrStaleRow)
	got, ok := cache.Snapshot().Periods.Find(5)
	require.True(t, ok)
	assert.Equal(t, "b", got.Label)
	assert.Equal(t, 2, cache.Snapshot().Periods.Len())
	_, ok = cache.Snapshot().Periods.Find(7)
	assert.False(t, ok)
}

func TestCacheDegraded(t *testing.T) {
	cache := NewCache(NewStore(nil, DefaultHeaderRows))
	ctx := context.Background()

	err := cache.Reload(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	snap := cache.Snapshot()
	assert.False(t, snap.Available)
	assert.NotNil(t, snap.Periods)

	_, err = cache.Insert(ctx, ledger.NewTransaction(day(1, 1, 2025), "x", dec("1")))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheKeepsDataOnReadFailure(t *testing.T) {
	table := NewMemoryTable(append(header(), []string{"01.03.2025", "a", "1"})...)
	store := NewStore(table, DefaultHeaderRows)
	cache := NewCache(store)
	ctx := context.Background()
	require.NoError(t, cache.Reload(ctx))

	cache.store = NewStore(&failingTable{}, DefaultHeaderRows)
	require.Error(t, cache.Reload(ctx))

	snap := cache.Snapshot()
	assert.False(t, snap.Available)
	assert.Equal(t, 1, snap.Periods.Len())
}
