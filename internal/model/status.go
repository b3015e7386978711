package model

import "time"

type SyncState string

const (
	StateIdle        SyncState = "idle"
	StateConnecting  SyncState = "connecting"
	StateScanning    SyncState = "scanning"
	StateDownloading SyncState = "downloading"
	StateStopping    SyncState = "stopping"
	StateError       SyncState = "error"
	StateJellyfin    SyncState = "jellyfin"
)

type SyncStats struct {
	FilesDownloaded int   `json:"files_downloaded"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	Errors          int   `json:"errors"`
}

type TransferStatus string

const (
	TransferSuccess TransferStatus = "success"
	TransferFailure TransferStatus = "failure"
)

// TransferRecord is immutable once created; the status board keeps the most
// recent 50, newest first.
type TransferRecord struct {
	Filename    string         `json:"filename"`
	Size        int64          `json:"size"`
	TargetPath  string         `json:"target_path"`
	Status      TransferStatus `json:"status"`
	CompletedAt time.Time      `json:"completed_at"`
	ErrorMsg    string         `json:"error_message,omitempty"`
}

// StatusSnapshot is the deep-copied view of the status board handed to
// callers. NextSyncTime/LastSyncTime are epoch seconds to keep the wire shape
// stable for the UI.
type StatusSnapshot struct {
	State           SyncState        `json:"state"`
	Message         string           `json:"message"`
	ActiveFile      string           `json:"active_file,omitempty"`
	TargetPath      string           `json:"target_path,omitempty"`
	Progress        int              `json:"progress"`
	DownloadSpeed   string           `json:"download_speed,omitempty"`
	Stats           SyncStats        `json:"stats"`
	RecentTransfers []TransferRecord `json:"recent_transfers"`
	LastError       string           `json:"last_error,omitempty"`
	LastSyncTime    *float64         `json:"last_sync_time"`
	NextSyncTime    *float64         `json:"next_sync_time"`
}

type JellyfinTask struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsHidden    bool   `json:"is_hidden"`
}
