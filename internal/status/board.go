// Package status holds the single shared progress surface every worker
// publishes into. All mutation goes through Board methods under one mutex;
// readers only ever see deep-copied snapshots.
package status

import (
	"container/list"
	"sync"
	"time"

	"harborsync/internal/model"
)

const transferHistoryCap = 50

type Board struct {
	mu        sync.Mutex
	state     model.SyncState
	message   string
	active    string
	target    string
	progress  int
	speed     string
	stats     model.SyncStats
	lastError string
	lastSync  *time.Time
	nextSync  *time.Time
	transfers *list.List
}

func NewBoard() *Board {
	return &Board{
		state:     model.StateIdle,
		message:   "Idle",
		transfers: list.New(),
	}
}

// SetPhase publishes a lifecycle transition together with its message and
// resets the progress figure.
func (b *Board) SetPhase(state model.SyncState, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = state
	b.message = message
	b.progress = 0
}

// ResetNeutral clears the per-file fields on the way back to a resting state
// (idle or error). Counters and history survive the reset.
func (b *Board) ResetNeutral(state model.SyncState, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = state
	b.message = message
	b.progress = 0
	b.active = ""
	b.target = ""
	b.speed = ""
}

func (b *Board) SetProgress(percent int, speed string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.progress = percent
	b.speed = speed
}

func (b *Board) SetActiveFile(filename, targetPath string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = model.StateDownloading
	b.message = "Downloading…"
	b.active = filename
	b.target = targetPath
	b.progress = 0
}

// ClearTransfer resets the per-file fields between downloads without
// touching the lifecycle state.
func (b *Board) ClearTransfer() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.progress = 0
	b.active = ""
	b.target = ""
	b.speed = ""
}

// SetJellyfinTask publishes cross-task progress while the job runner is
// active. Detail carries the remote state plus per-task percent.
func (b *Board) SetJellyfinTask(message, taskName, detail string, overall int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = model.StateJellyfin
	b.message = message
	b.active = taskName
	b.target = detail
	b.progress = overall
	b.speed = ""
}

func (b *Board) SetLastError(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastError = message
}

func (b *Board) SetLastSyncTime(t *time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSync = t
}

func (b *Board) SetNextSyncTime(t *time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSync = t
}

// ResetStats zeroes the counters at the start of a fresh run.
func (b *Board) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats = model.SyncStats{}
}

func (b *Board) BumpStats(files int, bytes int64, errors int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.FilesDownloaded += files
	b.stats.BytesDownloaded += bytes
	b.stats.Errors += errors
}

func (b *Board) Stats() model.SyncStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stats
}

// PushTransfer prepends a completed transfer record, evicting the oldest once
// the bounded history is full.
func (b *Board) PushTransfer(rec model.TransferRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transfers.PushFront(rec)
	for b.transfers.Len() > transferHistoryCap {
		b.transfers.Remove(b.transfers.Back())
	}
}

func (b *Board) State() model.SyncState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Snapshot returns a deep copy; callers never hold references into board
// internals.
func (b *Board) Snapshot() model.StatusSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := model.StatusSnapshot{
		State:           b.state,
		Message:         b.message,
		ActiveFile:      b.active,
		TargetPath:      b.target,
		Progress:        b.progress,
		DownloadSpeed:   b.speed,
		Stats:           b.stats,
		LastError:       b.lastError,
		RecentTransfers: make([]model.TransferRecord, 0, b.transfers.Len()),
	}

	for e := b.transfers.Front(); e != nil; e = e.Next() {
		snap.RecentTransfers = append(snap.RecentTransfers, e.Value.(model.TransferRecord))
	}

	if b.lastSync != nil {
		ts := float64(b.lastSync.UnixNano()) / float64(time.Second)
		snap.LastSyncTime = &ts
	}
	if b.nextSync != nil {
		ts := float64(b.nextSync.UnixNano()) / float64(time.Second)
		snap.NextSyncTime = &ts
	}

	return snap
}
