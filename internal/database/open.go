package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnsupportedDriver = errors.New("database: unsupported driver")
	errMissingDSN        = errors.New("database dsn is required")
)

// Config selects the driver and connection string of the relational store.
type Config struct {
	Driver string
	DSN    string
	Logger *zap.Logger
}

// Open connects to the configured database and brings the catalog schema up to date.
func Open(cfg Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errMissingDSN
	}

	var dialector gorm.Dialector
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, cfg.Logger); err != nil {
		return nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database initialized", zap.String("driver", driver))
	}
	return db, nil
}

// Migrate creates the catalog tables and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if db == nil {
		return errors.New("database handle is nil")
	}
	if err := db.AutoMigrate(
		&ProfileRecord{},
		&IngredientRecord{},
		&RecipeRecord{},
		&RecipeIngredientRecord{},
		&RecipeSeasonRecord{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
