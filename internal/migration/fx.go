package migration

import (
	"github.com/smallbiznis/boqledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates the schema before any service starts.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Run(conn, cfg.DBType); err != nil {
			return err
		}
		log.Info("database schema up to date", zap.String("db_type", cfg.DBType))
		return nil
	}),
)
