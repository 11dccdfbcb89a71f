// Package gsheets keeps sheets in a Google spreadsheet through the Sheets v4
// API. Each row store sheet is a tab of the configured spreadsheet.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/rowstore"
)

const (
	valueInputRaw        = "RAW"
	renderUnformatted    = "UNFORMATTED_VALUE"
	insertDataInsertRows = "INSERT_ROWS"
)

// Backend implements rowstore.Backend on one spreadsheet.
type Backend struct {
	service       *sheets.Service
	spreadsheetID string
	logger        *zap.Logger

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ rowstore.Backend = (*Backend)(nil)

// New builds a backend from cfg. A custom endpoint without a credentials file
// talks to it unauthenticated, which is how emulators are reached.
func New(ctx context.Context, cfg config.Sheets, logger *zap.Logger, extra ...option.ClientOption) (*Backend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	opts = append(opts, extra...)

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &Backend{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// Ping loads the spreadsheet metadata.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.refresh(ctx)
	return err
}

// EnsureSheet adds a tab with a bold header row unless one with that title
// exists.
func (b *Backend) EnsureSheet(ctx context.Context, name string, headers []string) (rowstore.Sheet, error) {
	if _, err := b.sheetID(ctx, name); err == nil {
		stored, err := b.headerRow(ctx, name)
		if err != nil {
			return rowstore.Sheet{}, err
		}
		return rowstore.Sheet{Name: name, Headers: stored}, nil
	} else if !isNotFound(err) {
		return rowstore.Sheet{}, err
	}

	resp, err := b.service.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return rowstore.Sheet{}, fmt.Errorf("add sheet %s: %w", name, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return rowstore.Sheet{}, fmt.Errorf("add sheet %s: empty reply", name)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId
	b.mu.Lock()
	b.sheetIDs[name] = id
	b.mu.Unlock()

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	_, err = b.service.Spreadsheets.Values.Update(b.spreadsheetID, a1(name, "A1"), &sheets.ValueRange{
		Values: [][]any{header},
	}).ValueInputOption(valueInputRaw).Context(ctx).Do()
	if err != nil {
		return rowstore.Sheet{}, fmt.Errorf("write headers of %s: %w", name, err)
	}

	_, err = b.service.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:         id,
					StartRowIndex:   0,
					EndRowIndex:     rowstore.HeaderRow,
					ForceSendFields: []string{"SheetId", "StartRowIndex"},
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}},
				},
				Fields: "userEnteredFormat.textFormat.bold",
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		// The sheet is usable without formatting.
		b.logger.Warn("format header row failed", zap.String("sheet", name), zap.Error(err))
	}

	return rowstore.Sheet{Name: name, Headers: append([]string(nil), headers...), Created: true}, nil
}

// Rows returns every row of the tab with unformatted values.
func (b *Backend) Rows(ctx context.Context, name string) ([][]any, error) {
	if _, err := b.sheetID(ctx, name); err != nil {
		return nil, err
	}
	resp, err := b.service.Spreadsheets.Values.Get(b.spreadsheetID, a1(name, "")).
		ValueRenderOption(renderUnformatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	rows := make([][]any, len(resp.Values))
	copy(rows, resp.Values)
	if len(rows) == 0 {
		rows = append(rows, []any{})
	}
	return rows, nil
}

// WriteRow overwrites the row at position starting from column A.
func (b *Backend) WriteRow(ctx context.Context, name string, position int, cells []any) error {
	if position <= rowstore.HeaderRow {
		return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
	}
	if _, err := b.sheetID(ctx, name); err != nil {
		return err
	}
	_, err := b.service.Spreadsheets.Values.Update(b.spreadsheetID, a1(name, fmt.Sprintf("A%d", position)), &sheets.ValueRange{
		Values: [][]any{cells},
	}).ValueInputOption(valueInputRaw).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s row %d: %w", name, position, err)
	}
	return nil
}

// AppendRow inserts cells after the last row of the tab.
func (b *Backend) AppendRow(ctx context.Context, name string, cells []any) error {
	if _, err := b.sheetID(ctx, name); err != nil {
		return err
	}
	_, err := b.service.Spreadsheets.Values.Append(b.spreadsheetID, a1(name, "A1"), &sheets.ValueRange{
		Values: [][]any{cells},
	}).ValueInputOption(valueInputRaw).InsertDataOption(insertDataInsertRows).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", name, err)
	}
	return nil
}

// DeleteRow removes the row at position, shifting later rows up.
func (b *Backend) DeleteRow(ctx context.Context, name string, position int) error {
	if position <= rowstore.HeaderRow {
		return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
	}
	id, err := b.sheetID(ctx, name)
	if err != nil {
		return err
	}
	_, err = b.service.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         id,
					Dimension:       "ROWS",
					StartIndex:      int64(position - 1),
					EndIndex:        int64(position),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete %s row %d: %w", name, position, err)
	}
	return nil
}

func (b *Backend) headerRow(ctx context.Context, name string) ([]string, error) {
	resp, err := b.service.Spreadsheets.Values.Get(b.spreadsheetID, a1(name, "1:1")).
		ValueRenderOption(renderUnformatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read headers of %s: %w", name, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	headers := make([]string, len(resp.Values[0]))
	for i, cell := range resp.Values[0] {
		headers[i] = rowstore.CellText(cell)
	}
	return headers, nil
}

// sheetID resolves a tab title, refreshing the cache once on a miss so tabs
// added outside this process are found.
func (b *Backend) sheetID(ctx context.Context, name string) (int64, error) {
	b.mu.Lock()
	id, ok := b.sheetIDs[name]
	b.mu.Unlock()
	if ok {
		return id, nil
	}

	ids, err := b.refresh(ctx)
	if err != nil {
		return 0, err
	}
	if id, ok := ids[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%s: %w", name, rowstore.ErrSheetNotFound)
}

func (b *Backend) refresh(ctx context.Context) (map[string]int64, error) {
	spreadsheet, err := b.service.Spreadsheets.Get(b.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("load spreadsheet: %w", err)
	}
	ids := make(map[string]int64, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		if s.Properties == nil {
			continue
		}
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	b.mu.Lock()
	b.sheetIDs = ids
	b.mu.Unlock()

	out := make(map[string]int64, len(ids))
	for k, v := range ids {
		out[k] = v
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, rowstore.ErrSheetNotFound)
}

// a1 builds an A1 range on the named tab. An empty cell range selects the
// whole tab.
func a1(name, cells string) string {
	quoted := "'" + strings.ReplaceAll(name, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}
