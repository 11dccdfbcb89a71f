package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/database"
	"github.com/Additional-Code/tabula/internal/migration"
	"github.com/Additional-Code/tabula/internal/rowstore"
)

func params(t *testing.T, lc *fxtest.Lifecycle, cfg config.Config) Params {
	t.Helper()
	if cfg.Database.Driver == "" {
		cfg.Database = config.Database{
			Driver:       "sqlite",
			WriterDSN:    filepath.Join(t.TempDir(), "store.db"),
			MaxOpenConns: 1,
		}
	}
	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	migrator, err := migration.NewWithDB(conns.Writer, cfg.Database.Driver, zap.NewNop())
	require.NoError(t, err)

	return Params{Lifecycle: lc, Config: cfg, Logger: zap.NewNop(), Conns: conns, Migrator: migrator}
}

func TestMemoryDriver(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	res, err := New(params(t, lc, config.Config{Store: config.Store{Driver: config.DriverMemory}}))
	require.NoError(t, err)

	assert.IsType(t, &rowstore.MemoryBackend{}, res.Backend)
	assert.Equal(t, config.DriverMemory, res.Health.Driver())
	assert.NoError(t, res.Health.Check(context.Background()))
}

func TestDatabaseDriverMigratesOnStart(t *testing.T) {
	ctx := context.Background()
	lc := fxtest.NewLifecycle(t)
	res, err := New(params(t, lc, config.Config{Store: config.Store{Driver: config.DriverDatabase, AutoSetup: true}}))
	require.NoError(t, err)

	lc.RequireStart()
	defer lc.RequireStop()

	require.NoError(t, res.Health.Check(ctx))
	sheet, err := res.Backend.EnsureSheet(ctx, "products", []string{"id"})
	require.NoError(t, err)
	assert.True(t, sheet.Created)
}

func TestRedisDriver(t *testing.T) {
	mr := miniredis.RunT(t)
	lc := fxtest.NewLifecycle(t)
	res, err := New(params(t, lc, config.Config{
		Store: config.Store{Driver: config.DriverRedis},
		Redis: config.Redis{Addr: mr.Addr(), KeyPrefix: "t"},
	}))
	require.NoError(t, err)

	lc.RequireStart()
	defer lc.RequireStop()

	assert.NoError(t, res.Health.Check(context.Background()))
}

func TestUnknownDriver(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	_, err := New(params(t, lc, config.Config{Store: config.Store{Driver: "ftp"}}))
	assert.Error(t, err)
}
