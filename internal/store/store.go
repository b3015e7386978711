// Package store persists runtime settings, secrets, the sync watermark, and
// transfer history in a local SQLite database.
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SecretMask is what API reads return in place of a stored secret. Writes
// carrying the mask keep the stored value.
const SecretMask = "********"

type Store struct {
	db *gorm.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.AutoMigrate(
		&SftpSettings{},
		&JellyfinSettings{},
		&SyncMark{},
		&Transfer{},
		&Credential{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{db: db}, nil
}
