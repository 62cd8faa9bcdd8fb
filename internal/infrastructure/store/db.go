// Package store persists products and matches with gorm on PostgreSQL or SQLite
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/creatorpulse/backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the database connection settings
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Debug logs every statement
	Debug bool
}

// Open connects to the database, applies pool settings and runs migrations
func Open(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
	case DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if log == nil {
		log = logger.NewNop()
	}
	logLevel := gormLogger.Warn
	if cfg.Debug {
		logLevel = gormLogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		// statement log goes through zap
		Logger: gormLogger.New(zap.NewStdLog(log.SugaredLogger.Desugar()), gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database object: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database connected", "driver", cfg.Driver)
	return db, nil
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off per connection
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=1"
}

// Migrate creates or updates the products and matches tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ProductModel{}, &MatchModel{}); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint")
}

func isCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "check constraint")
}
