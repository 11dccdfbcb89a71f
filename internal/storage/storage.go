// Package storage selects the row store backend named by STORE_DRIVER.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/database"
	"github.com/Additional-Code/tabula/internal/migration"
	"github.com/Additional-Code/tabula/internal/repository/sheet"
	"github.com/Additional-Code/tabula/internal/rowstore"
	"github.com/Additional-Code/tabula/internal/rowstore/gsheets"
	"github.com/Additional-Code/tabula/internal/rowstore/redisstore"
)

// Module provides the configured backend and its health check to Fx.
var Module = fx.Provide(New)

// Health reports whether the row store can serve requests.
type Health interface {
	Driver() string
	Check(ctx context.Context) error
}

// Params lists the dependencies of New.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Logger    *zap.Logger
	Conns     *database.Connections
	Migrator  *migration.Migrator
}

// Result exposes the backend and its health check.
type Result struct {
	fx.Out

	Backend rowstore.Backend
	Health  Health
}

// New builds the backend for cfg.Store.Driver. The database driver also
// applies pending migrations on start when auto setup is on.
func New(p Params) (Result, error) {
	driver := p.Config.Store.Driver
	logger := p.Logger.With(zap.String("store", driver))

	switch driver {
	case config.DriverMemory:
		logger.Warn("using in-memory row store; data is lost on exit")
		return result(rowstore.NewMemoryBackend(), driver, func(context.Context) error { return nil }), nil

	case config.DriverDatabase:
		if p.Config.Store.AutoSetup {
			p.Lifecycle.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := p.Migrator.Up(ctx); err != nil {
						return fmt.Errorf("migrate row store schema: %w", err)
					}
					return nil
				},
			})
		}
		return result(sheet.NewRepository(p.Conns), driver, p.Conns.Ping), nil

	case config.DriverRedis:
		backend := redisstore.Open(p.Lifecycle, p.Config.Redis, logger)
		return result(backend, driver, backend.Ping), nil

	case config.DriverSheets:
		backend, err := gsheets.New(context.Background(), p.Config.Sheets, logger)
		if err != nil {
			return Result{}, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := backend.Ping(ctx); err != nil {
					return fmt.Errorf("open spreadsheet: %w", err)
				}
				logger.Info("spreadsheet connected", zap.String("spreadsheet_id", p.Config.Sheets.SpreadsheetID))
				return nil
			},
		})
		return result(backend, driver, backend.Ping), nil

	default:
		return Result{}, errors.New("unsupported store driver: " + driver)
	}
}

type healthCheck struct {
	driver string
	check  func(ctx context.Context) error
}

func (p healthCheck) Driver() string                  { return p.driver }
func (p healthCheck) Check(ctx context.Context) error { return p.check(ctx) }

func result(backend rowstore.Backend, driver string, check func(context.Context) error) Result {
	return Result{Backend: backend, Health: healthCheck{driver: driver, check: check}}
}
