package rowstore

import (
	"context"
	"fmt"
)

// TableSpec is the schema a Table is opened with.
type TableSpec struct {
	Name    string
	Headers []string
	Key     string
	// JSONFields hold nested values stored as JSON text.
	JSONFields []string
	// Immutable fields keep their stored value on update once non-empty.
	Immutable []string
}

// Table is a handle on one sheet with keyed record operations.
type Table struct {
	spec       TableSpec
	headers    []string
	created    bool
	backend    Backend
	jsonFields map[string]struct{}
	immutable  map[string]struct{}
}

// DecodeFailure marks a JSON field that could not be decoded and was left as
// raw text.
type DecodeFailure struct {
	Row   int
	Field string
	Err   error
}

// ReadResult holds the records of a sheet plus any decode fallbacks.
type ReadResult struct {
	Records        []*Record
	DecodeFailures []DecodeFailure
}

// UpsertOutcome reports where an upsert landed.
type UpsertOutcome struct {
	Position int
	Inserted bool
}

// Ensure opens the sheet described by spec, creating it with a header row if
// it does not exist yet.
func Ensure(ctx context.Context, backend Backend, spec TableSpec) (*Table, error) {
	sheet, err := backend.EnsureSheet(ctx, spec.Name, spec.Headers)
	if err != nil {
		return nil, fmt.Errorf("ensure sheet %s: %w", spec.Name, err)
	}
	headers := sheet.Headers
	if len(headers) == 0 {
		headers = spec.Headers
	}
	return &Table{
		spec:       spec,
		headers:    headers,
		created:    sheet.Created,
		backend:    backend,
		jsonFields: toSet(spec.JSONFields),
		immutable:  toSet(spec.Immutable),
	}, nil
}

// Name returns the sheet name.
func (t *Table) Name() string { return t.spec.Name }

// Headers returns the header row the sheet was opened with.
func (t *Table) Headers() []string {
	out := make([]string, len(t.headers))
	copy(out, t.headers)
	return out
}

// Created reports whether Ensure had to create the sheet.
func (t *Table) Created() bool { return t.created }

// ReadAll returns every data row with a present key as a record.
func (t *Table) ReadAll(ctx context.Context) (ReadResult, error) {
	rows, err := t.backend.Rows(ctx, t.spec.Name)
	if err != nil {
		return ReadResult{}, fmt.Errorf("read sheet %s: %w", t.spec.Name, err)
	}
	result := ReadResult{Records: []*Record{}}
	if len(rows) <= 1 {
		return result, nil
	}

	headers := headerNames(rows[0])
	for i, row := range rows[1:] {
		rec := NewRecord()
		for col, header := range headers {
			value := cellAt(row, col)
			if _, ok := t.jsonFields[header]; ok {
				if text, isText := value.(string); isText && text != "" {
					decoded, err := DecodeJSON(text)
					if err != nil {
						result.DecodeFailures = append(result.DecodeFailures, DecodeFailure{
							Row:   i + 2,
							Field: header,
							Err:   err,
						})
					} else {
						value = decoded
					}
				}
			}
			rec.Set(header, value)
		}
		if !Truthy(rec.Value(t.spec.Key)) {
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// Upsert overwrites the first row whose key matches rec's key after both are
// rendered as text, or appends a new row. Cells follow the sheet's current
// header row; fields the record lacks are written as empty strings.
func (t *Table) Upsert(ctx context.Context, rec *Record) (UpsertOutcome, error) {
	rows, err := t.backend.Rows(ctx, t.spec.Name)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("read sheet %s: %w", t.spec.Name, err)
	}
	if len(rows) == 0 {
		return UpsertOutcome{}, fmt.Errorf("sheet %s: %w", t.spec.Name, ErrSheetNotFound)
	}
	headers := headerNames(rows[0])
	keyIdx := indexOf(headers, t.spec.Key)
	if keyIdx < 0 {
		return UpsertOutcome{}, fmt.Errorf("sheet %s: %w", t.spec.Name, ErrKeyColumnMissing)
	}

	position := 0
	var existing []any
	if keyVal, ok := rec.Get(t.spec.Key); ok && keyVal != nil {
		target := CellText(keyVal)
		for i := 1; i < len(rows); i++ {
			if CellText(cellAt(rows[i], keyIdx)) == target {
				position = i + 1
				existing = rows[i]
				break
			}
		}
	}

	cells := make([]any, len(headers))
	for col, header := range headers {
		if _, keep := t.immutable[header]; keep && existing != nil {
			if prev := cellAt(existing, col); Truthy(prev) {
				cells[col] = prev
				continue
			}
		}
		value, ok := rec.Get(header)
		if !ok {
			cells[col] = ""
			continue
		}
		cells[col] = normalizeCell(value)
	}

	if position > 0 {
		if err := t.backend.WriteRow(ctx, t.spec.Name, position, cells); err != nil {
			return UpsertOutcome{}, fmt.Errorf("write row %d of %s: %w", position, t.spec.Name, err)
		}
		return UpsertOutcome{Position: position}, nil
	}

	if err := t.backend.AppendRow(ctx, t.spec.Name, cells); err != nil {
		return UpsertOutcome{}, fmt.Errorf("append row to %s: %w", t.spec.Name, err)
	}
	return UpsertOutcome{Position: len(rows) + 1, Inserted: true}, nil
}

// Delete removes the first row whose key cell strictly equals id. It reports
// false when no row matched.
//
// Unlike Upsert, no text coercion happens here: the number 7 and the string
// "7" are different ids.
func (t *Table) Delete(ctx context.Context, id any) (bool, error) {
	rows, err := t.backend.Rows(ctx, t.spec.Name)
	if err != nil {
		return false, fmt.Errorf("read sheet %s: %w", t.spec.Name, err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	keyIdx := indexOf(headerNames(rows[0]), t.spec.Key)
	if keyIdx < 0 {
		return false, fmt.Errorf("sheet %s: %w", t.spec.Name, ErrKeyColumnMissing)
	}
	for i := 1; i < len(rows); i++ {
		if StrictEqual(cellAt(rows[i], keyIdx), id) {
			if err := t.backend.DeleteRow(ctx, t.spec.Name, i+1); err != nil {
				return false, fmt.Errorf("delete row %d of %s: %w", i+1, t.spec.Name, err)
			}
			return true, nil
		}
	}
	return false, nil
}

func headerNames(row []any) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = CellText(cell)
	}
	return out
}

func cellAt(row []any, col int) any {
	if col < 0 || col >= len(row) {
		return ""
	}
	if row[col] == nil {
		return ""
	}
	return row[col]
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
