package registry

import (
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore is the default backend, a single file under the data dir.
type SQLiteStore struct {
	gormStore
}

func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "wesense.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening registry database %s: %w", dbPath, err)
	}

	store := &SQLiteStore{gormStore{db: db}}
	if err := store.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrating registry database: %w", err)
	}
	return store, nil
}
