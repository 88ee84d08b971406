package database

import (
	"path/filepath"
	"testing"

	"github.com/PedroFlores1996/democrasite/internal/topics"
	"github.com/PedroFlores1996/democrasite/internal/users"
	"go.uber.org/zap"
)

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "api.db")

	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	for _, model := range append(topics.Models(), &users.User{}, &migrationRecord{}) {
		if !database.Migrator().HasTable(model) {
			testContext.Fatalf("expected table for %T", model)
		}
	}

	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		testContext.Fatalf("failed to close database: %v", err)
	}

	reopened, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("reopen failed: %v", err)
	}
	var records int64
	reopened.Model(&migrationRecord{}).Count(&records)
	if records != 2 {
		testContext.Fatalf("expected migrations to be recorded once, got %d", records)
	}
}

func TestOpenRejectsBadConfig(testContext *testing.T) {
	cases := []Config{
		{Driver: DriverSQLite},
		{Driver: DriverPostgres},
		{Driver: "oracle", DSN: "whatever"},
	}
	for _, cfg := range cases {
		if _, err := Open(cfg, nil); err == nil {
			testContext.Fatalf("expected error for %+v", cfg)
		}
	}
}
