package repository

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned by every Store operation when the sheet could
	// not be reached at startup.
	ErrUnavailable = errors.New("store unavailable")

	ErrRowOutOfRange = errors.New("row out of range")

	// ErrStaleRow means the row no longer holds the record a write was aimed
	// at, usually because a row above it was inserted or deleted.
	ErrStaleRow = errors.New("row changed since it was read")
)

// Table is the remote spreadsheet as the bot sees it: rows of formatted cell
// strings, addressed by 1-based row and column numbers.
type Table interface {
	// Rows returns every row; index 0 is row 1. Trailing empty cells may be
	// missing.
	Rows(ctx context.Context) ([][]string, error)
	InsertRow(ctx context.Context, position int, values []interface{}) error
	UpdateCells(ctx context.Context, row, col int, values []interface{}) error
	DeleteRow(ctx context.Context, position int) error
}
