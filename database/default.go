package database

import (
	"fmt"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _db *gorm.DB
var mutex sync.Mutex

func Setup(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("database url is not configured")
	}

	var err error
	_db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	return nil
}

// GetDB hands out the connection for the duration of one export run. Callers must
// ReleaseDB when done; a second run in the same process waits until then.
func GetDB() *gorm.DB {
	mutex.Lock()
	return _db
}

func ReleaseDB() {
	mutex.Unlock()
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TimeEntry{},
		&Assignment{},
		&Employee{},
		&ExportLedger{},
		&ExportBatch{},
		&BatchDetail{},
		&PendingEntry{},
		&Watermark{},
	)
}
