package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/shopspring/decimal"
)

// Snapshot is one full read of the sheet. It is never modified after Reload
// publishes it.
type Snapshot struct {
	Periods   ledger.Periods
	Available bool
	LoadedAt  time.Time
}

// Cache holds the latest Snapshot. Writes go to the Store first and are
// followed by a full reload.
type Cache struct {
	store *Store

	mu   sync.RWMutex
	snap Snapshot
}

func NewCache(store *Store) *Cache {
	return &Cache{
		store: store,
		snap:  Snapshot{Periods: ledger.Periods{}, Available: store.Available()},
	}
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Reload replaces the snapshot. A failed read keeps the previous periods but
// marks the snapshot unavailable.
func (c *Cache) Reload(ctx context.Context) error {
	periods, err := c.store.LoadAll(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			logger.Warn("Cache reload failed", "error", err)
		}
		c.snap = Snapshot{Periods: c.snap.Periods, Available: false, LoadedAt: c.snap.LoadedAt}
		return err
	}
	c.snap = Snapshot{Periods: periods, Available: true, LoadedAt: time.Now()}
	return nil
}

func (c *Cache) Insert(ctx context.Context, rec ledger.Record) (int, error) {
	row, err := c.store.Insert(ctx, rec)
	if err != nil {
		return 0, err
	}
	c.reloadAfterWrite(ctx)
	return row, nil
}

// Update and Delete only touch want.RowID while it still holds want, see
// ErrStaleRow. A stale write refreshes the snapshot so the caller can redraw.
func (c *Cache) Update(ctx context.Context, want ledger.Record, label string, amount decimal.Decimal) error {
	if err := c.store.Update(ctx, want, label, amount); err != nil {
		if errors.Is(err, ErrStaleRow) {
			c.reloadAfterWrite(ctx)
		}
		return err
	}
	c.reloadAfterWrite(ctx)
	return nil
}

func (c *Cache) Delete(ctx context.Context, want ledger.Record) error {
	if err := c.store.Delete(ctx, want); err != nil {
		if errors.Is(err, ErrStaleRow) {
			c.reloadAfterWrite(ctx)
		}
		return err
	}
	c.reloadAfterWrite(ctx)
	return nil
}

// reloadAfterWrite does not fail the write: the next scheduled sync repairs
// a missed reload.
func (c *Cache) reloadAfterWrite(ctx context.Context) {
	if err := c.Reload(ctx); err != nil {
		logger.Warn("Reload after write failed", "error", err)
	}
}
