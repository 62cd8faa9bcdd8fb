package store

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// testDB returns a migrated database. With TEST_POSTGRES_DSN set the test runs inside a
// Postgres transaction that is rolled back on cleanup; otherwise a private in-memory SQLite
// database is used.
func testDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			TranslateError: true,
			Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			tb.Fatalf("open postgres: %v", err)
		}
		if err := Migrate(db); err != nil {
			tb.Fatalf("migrate: %v", err)
		}
		tx := db.Begin()
		if tx.Error != nil {
			tb.Fatalf("begin tx: %v", tx.Error)
		}
		tb.Cleanup(func() {
			_ = tx.Rollback().Error
		})
		return tx
	}

	db, err := Open(Config{
		Driver:       DriverSQLite,
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, nil)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	db.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// seedProduct stores a product that matches can point at and returns its id
func seedProduct(tb testing.TB, db *gorm.DB, sourceID string) uuid.UUID {
	tb.Helper()
	row := &ProductModel{
		ID:             uuid.New(),
		AccountID:      "creator-1",
		SourcePlatform: "amazon",
		SourceID:       sourceID,
		Title:          "Stanley Quencher H2.0 FlowState Tumbler 40oz",
	}
	if err := db.Create(row).Error; err != nil {
		tb.Fatalf("seed product %s: %v", sourceID, err)
	}
	return row.ID
}
