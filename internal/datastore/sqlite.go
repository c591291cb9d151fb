package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/logger"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open opens or creates the database file and migrates the schema. The
// path ":memory:" opens a private in-memory database.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return dbError(err, "create_db_dir")
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return dbError(err, "open_sqlite")
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return dbError(err, "get_sql_db")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	if err := performAutoMigration(db, "SQLite"); err != nil {
		return err
	}

	GetLogger().Info("utterance store opened", logger.String("db_type", "SQLite"), logger.String("path", path))
	return nil
}

// Close closes the database
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
