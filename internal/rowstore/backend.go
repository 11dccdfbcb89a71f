// Package rowstore adapts a spreadsheet-like row store to keyed record access.
//
// A sheet is an ordered list of rows. Row 1 holds the column headers and data
// rows follow from row 2. Backends only know about positions; the Table type
// layered on top provides ensure/read/upsert/delete by key.
//
// Nothing here coordinates writers across processes. Two processes upserting
// the same id at the same time can lose one of the updates.
package rowstore

import (
	"context"
	"errors"
)

// HeaderRow is the sheet row number holding column names.
const HeaderRow = 1

var (
	// ErrSheetNotFound is returned when a sheet has not been created yet.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrRowOutOfRange is returned for positions outside the sheet's data rows.
	ErrRowOutOfRange = errors.New("row position out of range")
	// ErrKeyColumnMissing is returned when the key field is not a header.
	ErrKeyColumnMissing = errors.New("key column missing from header row")
)

// Sheet describes a sheet returned by EnsureSheet.
type Sheet struct {
	Name    string
	Headers []string
	Created bool
}

// Backend is the positional row store collaborator.
//
// Positions are 1-based sheet row numbers, so the first data row is 2.
// Rows returns every row including the header row at index 0; data rows
// may be shorter than the header row when trailing cells are empty.
type Backend interface {
	EnsureSheet(ctx context.Context, name string, headers []string) (Sheet, error)
	Rows(ctx context.Context, name string) ([][]any, error)
	WriteRow(ctx context.Context, name string, position int, cells []any) error
	AppendRow(ctx context.Context, name string, cells []any) error
	DeleteRow(ctx context.Context, name string, position int) error
}
