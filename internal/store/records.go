package store

import (
	"time"

	"gorm.io/gorm"

	"harborsync/internal/model"
)

// SftpSettings is a single-row table; Password is kept unmasked at rest and
// masked by the read paths that face the API.
type SftpSettings struct {
	gorm.Model
	Host                string
	Port                int    `gorm:"default:22"`
	Username            string
	Password            string
	RemoteRoot          string
	LocalRoot           string
	SkipFolders         string // comma-separated
	SyncIntervalMinutes int    `gorm:"default:240"`
	AutoSyncEnabled     bool
	StartAfter          string
}

type JellyfinSettings struct {
	gorm.Model
	ServerURL          string
	APIKey             string
	IncludeHiddenTasks bool   `gorm:"default:true"`
	SelectedTasks      string // JSON-encoded []model.SelectedTask
	Tested             bool
}

// SyncMark holds the last-successful-sync watermark.
type SyncMark struct {
	gorm.Model
	LastSyncAt time.Time
}

type Transfer struct {
	gorm.Model
	Filename    string               `gorm:"not null"`
	Size        int64
	TargetPath  string               `gorm:"not null"`
	Status      model.TransferStatus `gorm:"not null"`
	ErrMsg      string
	CompletedAt time.Time            `gorm:"not null"`
}

// Credential is the single admin login; only the bcrypt hash is stored.
type Credential struct {
	gorm.Model
	Username     string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
}
