package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// SheetModel is a sheet stored in the relational backend. Headers holds the
// header row as a JSON array.
type SheetModel struct {
	bun.BaseModel `bun:"table:sheets"`

	Name      string    `bun:"name,pk"`
	Headers   string    `bun:"headers,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// SheetRowModel is one data row. Position is the 1-based sheet row number, so
// the first data row sits at 2. Cells holds the row as a JSON array.
//
// (sheet, position) identifies a row but is not declared unique: deleting a
// row shifts later positions down in a single UPDATE.
type SheetRowModel struct {
	bun.BaseModel `bun:"table:sheet_rows"`

	Sheet    string `bun:"sheet,notnull"`
	Position int    `bun:"position,notnull"`
	Cells    string `bun:"cells,notnull"`
}
