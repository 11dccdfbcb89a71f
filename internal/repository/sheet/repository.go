// Package sheet stores positional sheet rows in a relational database.
package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tabula/internal/database"
	"github.com/Additional-Code/tabula/internal/entity"
	"github.com/Additional-Code/tabula/internal/rowstore"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tabula/repository/sheet")

// Repository implements rowstore.Backend on the sheets and sheet_rows tables.
//
// Every query goes to the writer. Upserts scan the sheet before they write,
// and a lagging replica would make them append duplicates.
type Repository struct {
	db *bun.DB
}

var _ rowstore.Backend = (*Repository)(nil)

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{db: conns.Writer}
}

// EnsureSheet creates the sheet with headers unless it already exists.
func (r *Repository) EnsureSheet(ctx context.Context, name string, headers []string) (rowstore.Sheet, error) {
	ctx, span := repoTracer.Start(ctx, "SheetRepository.EnsureSheet", trace.WithAttributes(attribute.String("sheet.name", name)))
	defer span.End()

	existing, err := r.loadSheet(ctx, r.db, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, rowstore.ErrSheetNotFound) {
		fail(span, err, "select failed")
		return rowstore.Sheet{}, err
	}

	encoded, err := json.Marshal(headers)
	if err != nil {
		return rowstore.Sheet{}, err
	}
	model := &entity.SheetModel{Name: name, Headers: string(encoded)}
	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		// Another writer may have created it first.
		if existing, lookupErr := r.loadSheet(ctx, r.db, name); lookupErr == nil {
			return existing, nil
		}
		fail(span, err, "insert failed")
		return rowstore.Sheet{}, err
	}

	return rowstore.Sheet{Name: name, Headers: append([]string(nil), headers...), Created: true}, nil
}

// Rows returns the header row followed by data rows in position order.
func (r *Repository) Rows(ctx context.Context, name string) ([][]any, error) {
	ctx, span := repoTracer.Start(ctx, "SheetRepository.Rows", trace.WithAttributes(attribute.String("sheet.name", name)))
	defer span.End()

	sheet, err := r.loadSheet(ctx, r.db, name)
	if err != nil {
		fail(span, err, "select failed")
		return nil, err
	}

	var models []entity.SheetRowModel
	err = r.db.NewSelect().
		Model(&models).
		Where("sheet = ?", name).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		fail(span, err, "select rows failed")
		return nil, err
	}

	header := make([]any, len(sheet.Headers))
	for i, h := range sheet.Headers {
		header[i] = h
	}
	rows := make([][]any, 0, len(models)+1)
	rows = append(rows, header)
	for _, m := range models {
		cells, err := decodeCells(m.Cells)
		if err != nil {
			fail(span, err, "decode failed")
			return nil, fmt.Errorf("%s row %d: %w", name, m.Position, err)
		}
		rows = append(rows, cells)
	}
	span.SetAttributes(attribute.Int("sheet.rows", len(models)))
	return rows, nil
}

// WriteRow replaces the cells of the data row at position.
func (r *Repository) WriteRow(ctx context.Context, name string, position int, cells []any) error {
	ctx, span := repoTracer.Start(ctx, "SheetRepository.WriteRow", trace.WithAttributes(
		attribute.String("sheet.name", name),
		attribute.Int("sheet.position", position),
	))
	defer span.End()

	encoded, err := rowstore.MarshalText(cells)
	if err != nil {
		return err
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*entity.SheetRowModel)(nil)).
			Where("sheet = ?", name).
			Where("position = ?", position).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
		}
		_, err = tx.NewUpdate().
			Model((*entity.SheetRowModel)(nil)).
			Set("cells = ?", string(encoded)).
			Where("sheet = ?", name).
			Where("position = ?", position).
			Exec(ctx)
		return err
	})
	if err != nil {
		fail(span, err, "update failed")
	}
	return err
}

// AppendRow inserts cells after the last row.
func (r *Repository) AppendRow(ctx context.Context, name string, cells []any) error {
	ctx, span := repoTracer.Start(ctx, "SheetRepository.AppendRow", trace.WithAttributes(attribute.String("sheet.name", name)))
	defer span.End()

	encoded, err := rowstore.MarshalText(cells)
	if err != nil {
		return err
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := r.loadSheet(ctx, tx, name); err != nil {
			return err
		}
		var last int
		err := tx.NewSelect().
			Model((*entity.SheetRowModel)(nil)).
			ColumnExpr("COALESCE(MAX(position), ?)", rowstore.HeaderRow).
			Where("sheet = ?", name).
			Scan(ctx, &last)
		if err != nil {
			return err
		}
		row := &entity.SheetRowModel{Sheet: name, Position: last + 1, Cells: string(encoded)}
		_, err = tx.NewInsert().Model(row).Exec(ctx)
		return err
	})
	if err != nil {
		fail(span, err, "insert failed")
	}
	return err
}

// DeleteRow removes the data row at position and shifts later rows up.
func (r *Repository) DeleteRow(ctx context.Context, name string, position int) error {
	ctx, span := repoTracer.Start(ctx, "SheetRepository.DeleteRow", trace.WithAttributes(
		attribute.String("sheet.name", name),
		attribute.Int("sheet.position", position),
	))
	defer span.End()

	if position <= rowstore.HeaderRow {
		return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*entity.SheetRowModel)(nil)).
			Where("sheet = ?", name).
			Where("position = ?", position).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
		}
		_, err = tx.NewUpdate().
			Model((*entity.SheetRowModel)(nil)).
			Set("position = position - 1").
			Where("sheet = ?", name).
			Where("position > ?", position).
			Exec(ctx)
		return err
	})
	if err != nil {
		fail(span, err, "delete failed")
	}
	return err
}

func (r *Repository) loadSheet(ctx context.Context, db bun.IDB, name string) (rowstore.Sheet, error) {
	model := new(entity.SheetModel)
	err := db.NewSelect().Model(model).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return rowstore.Sheet{}, fmt.Errorf("%s: %w", name, rowstore.ErrSheetNotFound)
	}
	if err != nil {
		return rowstore.Sheet{}, err
	}
	var headers []string
	if err := json.Unmarshal([]byte(model.Headers), &headers); err != nil {
		return rowstore.Sheet{}, fmt.Errorf("%s headers: %w", name, err)
	}
	return rowstore.Sheet{Name: name, Headers: headers}, nil
}

func decodeCells(text string) ([]any, error) {
	decoded, err := rowstore.DecodeJSON(text)
	if err != nil {
		return nil, err
	}
	cells, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("cells are %T, not an array", decoded)
	}
	return cells, nil
}

func fail(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}
