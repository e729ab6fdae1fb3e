package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsTable is a Table backed by one tab of a Google spreadsheet.
type SheetsTable struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	sheetID       int64
}

// SheetsCredentials points at a service account key, either inline JSON or
// a file path.
type SheetsCredentials struct {
	JSON string
	File string
}

func (c SheetsCredentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case c.File != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

// NewSheetsTable authorizes with a service account and resolves the numeric
// id of sheetName, which row insert/delete requests need.
func NewSheetsTable(ctx context.Context, creds SheetsCredentials, spreadsheetID, sheetName string) (*SheetsTable, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	key, err := creds.load()
	if err != nil {
		return nil, err
	}

	cfg, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("jwt config: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	doc, err := svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	for _, s := range doc.Sheets {
		if s.Properties != nil && s.Properties.Title == sheetName {
			return &SheetsTable{
				svc:           svc,
				spreadsheetID: spreadsheetID,
				sheetName:     sheetName,
				sheetID:       s.Properties.SheetId,
			}, nil
		}
	}
	return nil, fmt.Errorf("sheet %q not found in spreadsheet", sheetName)
}

func (t *SheetsTable) Rows(ctx context.Context) ([][]string, error) {
	rng := t.a1("A:D")
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strings.TrimSpace(fmt.Sprint(v))
		}
		out[i] = cells
	}
	return out, nil
}

func (t *SheetsTable) InsertRow(ctx context.Context, position int, values []interface{}) error {
	if position < 1 {
		return fmt.Errorf("insert at %d: %w", position, ErrRowOutOfRange)
	}
	insert := &sheets.Request{InsertDimension: &sheets.InsertDimensionRequest{
		Range:             t.rowRange(position),
		InheritFromBefore: position > 1,
	}}
	if err := t.batch(ctx, insert); err != nil {
		return fmt.Errorf("insert row %d: %w", position, err)
	}
	return t.UpdateCells(ctx, position, 1, values)
}

func (t *SheetsTable) UpdateCells(ctx context.Context, row, col int, values []interface{}) error {
	if row < 1 || col < 1 || len(values) == 0 {
		return fmt.Errorf("update %d:%d: %w", row, col, ErrRowOutOfRange)
	}
	rng := t.a1(fmt.Sprintf("%s%d:%s%d", columnName(col), row, columnName(col+len(values)-1), row))
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}

func (t *SheetsTable) DeleteRow(ctx context.Context, position int) error {
	if position < 1 {
		return fmt.Errorf("delete %d: %w", position, ErrRowOutOfRange)
	}
	del := &sheets.Request{DeleteDimension: &sheets.DeleteDimensionRequest{Range: t.rowRange(position)}}
	if err := t.batch(ctx, del); err != nil {
		return fmt.Errorf("delete row %d: %w", position, err)
	}
	return nil
}

func (t *SheetsTable) batch(ctx context.Context, reqs ...*sheets.Request) error {
	_, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	return err
}

func (t *SheetsTable) rowRange(position int) *sheets.DimensionRange {
	return &sheets.DimensionRange{
		SheetId:         t.sheetID,
		Dimension:       "ROWS",
		StartIndex:      int64(position - 1),
		EndIndex:        int64(position),
		ForceSendFields: []string{"SheetId", "StartIndex"},
	}
}

func (t *SheetsTable) a1(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(t.sheetName, "'", "''"), cells)
}

// columnName converts 1 → A, 27 → AA.
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}
