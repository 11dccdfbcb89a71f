package migration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/database"
	"github.com/Additional-Code/tabula/internal/entity"
)

func TestUpAndDownOnSQLite(t *testing.T) {
	ctx := context.Background()
	conns, err := database.Open(config.Database{
		Driver:       "sqlite",
		WriterDSN:    filepath.Join(t.TempDir(), "tabula.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	m, err := NewWithDB(conns.Writer, "sqlite", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "second run has nothing to apply")

	var sheets []entity.SheetModel
	require.NoError(t, conns.Writer.NewSelect().Model(&sheets).Scan(ctx))
	assert.Empty(t, sheets)

	require.NoError(t, m.Down(ctx, 0, true))
	err = conns.Writer.NewSelect().Model(&sheets).Scan(ctx)
	assert.Error(t, err)
}

func TestUnsupportedDialect(t *testing.T) {
	_, err := NewWithDB(nil, "oracle", zap.NewNop())
	assert.Error(t, err)
}
