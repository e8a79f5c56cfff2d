// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"order-bridge/internal/client"
	"order-bridge/internal/config"

	"gorm.io/gorm"
)

// NewDB opens a migrated sqlite database in a per-test temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := client.InitDB(config.Database{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
