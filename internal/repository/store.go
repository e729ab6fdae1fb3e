package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/shopspring/decimal"
)

const DefaultHeaderRows = 4

const (
	colDate = iota + 1
	colLabel
	colAmount
	colSalary
)

// Store translates between ledger records and sheet rows. The sheet is the
// source of truth; Store keeps no state besides the table handle.
type Store struct {
	table      Table
	headerRows int

	// writes guards the position scan and the write that follows it.
	writes sync.Mutex
}

// NewStore returns a Store over table. A nil table gives a degraded store
// whose operations all fail with ErrUnavailable.
func NewStore(table Table, headerRows int) *Store {
	if headerRows < 0 {
		headerRows = DefaultHeaderRows
	}
	return &Store{table: table, headerRows: headerRows}
}

func (s *Store) Available() bool { return s.table != nil }

// LoadAll reads every data row. In degraded mode it returns an empty index
// together with ErrUnavailable.
func (s *Store) LoadAll(ctx context.Context) (ledger.Periods, error) {
	if s.table == nil {
		return ledger.Periods{}, ErrUnavailable
	}
	rows, err := s.table.Rows(ctx)
	if err != nil {
		return ledger.Periods{}, fmt.Errorf("load rows: %w", err)
	}

	var records []ledger.Record
	for i, row := range rows {
		idx := i + 1
		if idx <= s.headerRows || len(row) < 2 {
			continue
		}
		rec, ok := classify(row)
		if !ok {
			continue
		}
		rec.RowID = idx
		records = append(records, rec)
	}
	return ledger.Group(records), nil
}

func classify(row []string) (ledger.Record, bool) {
	date, err := ledger.ParseDate(row[0])
	if err != nil {
		return ledger.Record{}, false
	}
	label := cell(row, colLabel)

	if sal, err := ledger.ParseAmount(cell(row, colSalary)); err == nil {
		rec := ledger.NewSalary(date, sal)
		rec.Label = label
		return rec, true
	}
	if amt, err := ledger.ParseAmount(cell(row, colAmount)); err == nil {
		return ledger.NewTransaction(date, label, amt), true
	}
	return ledger.Record{}, false
}

func cell(row []string, col int) string {
	if len(row) < col {
		return ""
	}
	return row[col-1]
}

// Insert keeps the sheet sorted by date: the row goes right after the last
// row dated on or before rec.Date, so same-day rows stay in insertion order.
func (s *Store) Insert(ctx context.Context, rec ledger.Record) (int, error) {
	if s.table == nil {
		return 0, ErrUnavailable
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	rows, err := s.table.Rows(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan dates: %w", err)
	}
	pos := s.insertPosition(rows, ledger.Day(rec.Date))

	if err := s.table.InsertRow(ctx, pos, rowValues(rec)); err != nil {
		return 0, fmt.Errorf("insert row: %w", err)
	}
	logger.Debug("Row inserted", "row", pos, "date", rec.DateString(), "kind", rec.Kind)
	return pos, nil
}

func (s *Store) insertPosition(rows [][]string, date time.Time) int {
	last := s.headerRows
	for i := s.headerRows; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		d, err := ledger.ParseDate(rows[i][0])
		if err != nil {
			continue
		}
		if d.After(date) {
			break
		}
		last = i + 1
	}
	return last + 1
}

func rowValues(rec ledger.Record) []interface{} {
	amount, salary := interface{}(""), interface{}("")
	if rec.IsSalary() {
		salary = rec.Amount.InexactFloat64()
	} else {
		amount = rec.Amount.InexactFloat64()
	}
	return []interface{}{rec.DateString(), rec.Label, amount, salary}
}

// Update rewrites the label and amount of want.RowID in place, provided the
// row still holds want. The row is not moved.
func (s *Store) Update(ctx context.Context, want ledger.Record, label string, amount decimal.Decimal) error {
	if s.table == nil {
		return ErrUnavailable
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	if err := s.verify(ctx, want); err != nil {
		return err
	}
	if err := s.table.UpdateCells(ctx, want.RowID, colLabel, []interface{}{label, amount.InexactFloat64()}); err != nil {
		return fmt.Errorf("update row %d: %w", want.RowID, err)
	}
	logger.Debug("Row updated", "row", want.RowID)
	return nil
}

// Delete removes want.RowID if it still holds want; every row id below it
// shifts up by one.
func (s *Store) Delete(ctx context.Context, want ledger.Record) error {
	if s.table == nil {
		return ErrUnavailable
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	if err := s.verify(ctx, want); err != nil {
		return err
	}
	if err := s.table.DeleteRow(ctx, want.RowID); err != nil {
		return fmt.Errorf("delete row %d: %w", want.RowID, err)
	}
	logger.Debug("Row deleted", "row", want.RowID)
	return nil
}

// verify re-reads the sheet and checks that want.RowID still holds want.
// Callers hold s.writes.
func (s *Store) verify(ctx context.Context, want ledger.Record) error {
	rows, err := s.table.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read row %d: %w", want.RowID, err)
	}
	if want.RowID <= s.headerRows || want.RowID > len(rows) {
		return fmt.Errorf("row %d: %w", want.RowID, ErrRowOutOfRange)
	}

	row := rows[want.RowID-1]
	if len(row) < 2 {
		return fmt.Errorf("row %d: %w", want.RowID, ErrStaleRow)
	}
	got, ok := classify(row)
	if !ok || !sameRecord(got, want) {
		logger.Warn("Row changed under a pending write", "row", want.RowID,
			"want_date", want.DateString(), "want_label", want.Label,
			"got_date", cell(row, colDate), "got_label", cell(row, colLabel))
		return fmt.Errorf("row %d: %w", want.RowID, ErrStaleRow)
	}
	return nil
}

func sameRecord(a, b ledger.Record) bool {
	return a.Kind == b.Kind &&
		a.Date.Equal(ledger.Day(b.Date)) &&
		a.Label == b.Label &&
		a.Amount.Equal(b.Amount)
}
