package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	certificatedomain "github.com/smallbiznis/boqledger/internal/certificate/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	sequencedomain "github.com/smallbiznis/boqledger/internal/sequence/domain"
	variationdomain "github.com/smallbiznis/boqledger/internal/variation/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the ledger, in dependency order.
func Models() []any {
	return []any{
		&partnerdomain.Partner{},
		&productdomain.Product{},
		&sequencedomain.Sequence{},
		&boqdomain.Project{},
		&boqdomain.Activity{},
		&boqdomain.SubActivity{},
		&boqdomain.CostType{},
		&boqdomain.AdditionalCost{},
		&certificatedomain.Certificate{},
		&certificatedomain.Line{},
		&variationdomain.Variation{},
		&variationdomain.Line{},
		&integrationdomain.Order{},
		&integrationdomain.OrderLine{},
		&integrationdomain.Invoice{},
		&integrationdomain.InvoiceLine{},
		&integrationdomain.AnalyticAccount{},
		&integrationdomain.ExternalProject{},
		&integrationdomain.PurchaseOrder{},
		&integrationdomain.PurchaseOrderLine{},
		&auditdomain.AuditLog{},
		&events.Event{},
	}
}

// Run brings the schema up to date. Postgres databases are versioned with
// the embedded SQL migrations; mysql and sqlite, used for local runs, are
// auto-migrated from the models.
func Run(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if dbType != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate %s: %w", dbType, err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies every pending embedded migration to a postgres
// database.
func RunMigrations(db *sql.DB) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Rollback reverts the given number of applied migrations.
func Rollback(db *sql.DB, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := migrator.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(db *sql.DB) (uint, bool, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}
