package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryTable is a Table kept in process memory. It backs STORE_BACKEND=memory
// and the tests.
type MemoryTable struct {
	mu   sync.Mutex
	rows [][]string
}

func NewMemoryTable(rows ...[]string) *MemoryTable {
	t := &MemoryTable{}
	for _, r := range rows {
		t.rows = append(t.rows, append([]string(nil), r...))
	}
	return t
}

func (t *MemoryTable) Rows(ctx context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (t *MemoryTable) InsertRow(ctx context.Context, position int, values []interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if position < 1 || position > len(t.rows)+1 {
		return fmt.Errorf("insert at %d: %w", position, ErrRowOutOfRange)
	}
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = cellString(v)
	}
	t.rows = append(t.rows, nil)
	copy(t.rows[position:], t.rows[position-1:])
	t.rows[position-1] = row
	return nil
}

func (t *MemoryTable) UpdateCells(ctx context.Context, row, col int, values []interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if row < 1 || row > len(t.rows) || col < 1 {
		return fmt.Errorf("update %d:%d: %w", row, col, ErrRowOutOfRange)
	}
	r := t.rows[row-1]
	for len(r) < col-1+len(values) {
		r = append(r, "")
	}
	for i, v := range values {
		r[col-1+i] = cellString(v)
	}
	t.rows[row-1] = r
	return nil
}

func (t *MemoryTable) DeleteRow(ctx context.Context, position int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if position < 1 || position > len(t.rows) {
		return fmt.Errorf("delete %d: %w", position, ErrRowOutOfRange)
	}
	t.rows = append(t.rows[:position-1], t.rows[position:]...)
	return nil
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strings.Replace(decimal.NewFromFloat(x).String(), ".", ",", 1)
	default:
		return fmt.Sprint(x)
	}
}
