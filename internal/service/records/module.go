package records

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
)

// Module provides the record service to Fx.
var Module = fx.Provide(NewService)

// AutoSetup creates missing sheets on start when STORE_AUTO_SETUP is on.
var AutoSetup = fx.Invoke(registerAutoSetup)

func registerAutoSetup(lc fx.Lifecycle, cfg config.Config, svc *Service, logger *zap.Logger) {
	if !cfg.Store.AutoSetup {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			res, err := svc.Setup(ctx)
			if err != nil {
				return err
			}
			for _, sheet := range res.Sheets {
				logger.Debug("sheet ready", zap.String("sheet", sheet.Name), zap.Bool("created", sheet.Created))
			}
			return nil
		},
	})
}
