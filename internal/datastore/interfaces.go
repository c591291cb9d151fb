// Package datastore persists finalized utterances with gorm.
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

// Interface is the utterance store used by the session
type Interface interface {
	Open() error
	Save(u *Utterance) error
	Latest(limit int) ([]Utterance, error)
	BySession(sessionID string) ([]Utterance, error)
	Close() error
}

// DataStore implements the queries shared by all gorm backends
type DataStore struct {
	DB *gorm.DB
}

// New returns the store enabled in settings, or nil when none is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// GetLogger returns the datastore package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

func newGormLogger() *logger.GormLoggerAdapter {
	return logger.NewGormLoggerAdapter(GetLogger(), 200*time.Millisecond)
}

// Save inserts u
func (ds *DataStore) Save(u *Utterance) error {
	if ds.DB == nil {
		return errNotOpen("save")
	}
	if err := ds.DB.Create(u).Error; err != nil {
		return dbError(err, "save_utterance")
	}
	return nil
}

// Latest returns up to limit utterances, newest first
func (ds *DataStore) Latest(limit int) ([]Utterance, error) {
	if ds.DB == nil {
		return nil, errNotOpen("latest")
	}
	var out []Utterance
	if err := ds.DB.Order("finalized_at desc, id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "latest_utterances")
	}
	return out, nil
}

// BySession returns the utterances of a session in order
func (ds *DataStore) BySession(sessionID string) ([]Utterance, error) {
	if ds.DB == nil {
		return nil, errNotOpen("by_session")
	}
	var out []Utterance
	if err := ds.DB.Where("session_id = ?", sessionID).Order("sequence asc").Find(&out).Error; err != nil {
		return nil, dbError(err, "session_utterances")
	}
	return out, nil
}

// closeDB closes the underlying connection pool
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "get_sql_db")
	}
	ds.DB = nil
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

func performAutoMigration(db *gorm.DB, dbType string) error {
	if err := db.AutoMigrate(&Utterance{}); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("database migrated", logger.String("db_type", dbType))
	return nil
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

func errNotOpen(operation string) error {
	return errors.Newf("database connection is not initialized").
		Component("datastore").
		Category(errors.CategoryState).
		Context("operation", operation).
		Build()
}
