package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/migration"
	"github.com/smallbiznis/boqledger/internal/observability"
	"github.com/smallbiznis/boqledger/internal/server"
	"github.com/smallbiznis/boqledger/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "boqledger",
		Short:         "Bill of quantities ledger for construction projects",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the event dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				lock.Module,
				migration.Module,
				server.Module,
				events.DispatcherModule,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var (
		down        int
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
				log  *zap.Logger
			)
			app := fx.New(
				fx.NopLogger,
				config.Module,
				observability.Module,
				db.Module,
				fx.Populate(&conn, &cfg, &log),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			if down == 0 && !showVersion {
				if err := migration.Run(conn, cfg.DBType); err != nil {
					return err
				}
				log.Info("database schema up to date", zap.String("db_type", cfg.DBType))
				return nil
			}

			if cfg.DBType != "postgres" {
				return errors.New("rollback and version require a postgres database")
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if down > 0 {
				if err := migration.Rollback(sqlDB, down); err != nil {
					return err
				}
				log.Info("migrations rolled back", zap.Int("steps", down))
			}

			version, dirty, err := migration.Version(sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back the given number of migrations")
	cmd.Flags().BoolVar(&showVersion, "version", false, "print the current schema version")
	return cmd
}

// RegisterSnowflake provides the id generator for this node.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
