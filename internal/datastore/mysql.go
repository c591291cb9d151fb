package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func (store *MySQLStore) dsn() string {
	m := store.Settings.Output.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// Open connects to the server and migrates the schema
func (store *MySQLStore) Open() error {
	m := store.Settings.Output.MySQL

	db, err := gorm.Open(mysql.Open(store.dsn()), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_mysql").
			Context("host", m.Host).
			Context("database", m.Database).
			Build()
	}

	store.DB = db
	if err := performAutoMigration(db, "MySQL"); err != nil {
		return err
	}

	GetLogger().Info("utterance store opened",
		logger.String("db_type", "MySQL"),
		logger.String("host", m.Host),
		logger.String("database", m.Database))
	return nil
}

// Close closes the connection pool
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
