// Package daemon owns the background workers: at most one mirror run and at
// most one Jellyfin task run, mutually exclusive, both publishing into the
// shared status board and both stoppable through a broadcast signal.
package daemon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"harborsync/internal/activity"
	"harborsync/internal/jellyfin"
	"harborsync/internal/logger"
	"harborsync/internal/mirror"
	"harborsync/internal/model"
	"harborsync/internal/status"
	"harborsync/internal/stop"
	"harborsync/internal/store"
)

var (
	ErrSyncInProgress  = errors.New("a sync is already running")
	ErrJellyfinRunning = errors.New("jellyfin tasks are already running")
	ErrSyncActive      = errors.New("cannot run jellyfin tasks while a sync is active")
	ErrNotTested       = errors.New("test the jellyfin connection first")
)

// TaskAPIFactory builds the Jellyfin client for a run; tests swap in a fake.
type TaskAPIFactory func(serverURL, apiKey string) (jellyfin.API, error)

type Manager struct {
	board  *status.Board
	store  *store.Store
	act    *activity.Log
	errlog *activity.ErrorLog
	engine *mirror.Engine
	newAPI TaskAPIFactory

	mu             sync.Mutex
	syncActive     bool
	syncStop       *stop.Signal
	jellyfinActive bool
	jellyfinStop   *stop.Signal
}

func NewManager(board *status.Board, st *store.Store, act *activity.Log, errlog *activity.ErrorLog, dial mirror.Dialer) *Manager {
	m := &Manager{
		board:  board,
		store:  st,
		act:    act,
		errlog: errlog,
		newAPI: func(serverURL, apiKey string) (jellyfin.API, error) {
			return jellyfin.NewClient(serverURL, apiKey)
		},
	}

	m.engine = mirror.NewEngine(board, dial,
		func(rec model.TransferRecord) {
			if err := st.SaveTransfer(rec); err != nil {
				logger.Log.Warn("failed to save transfer record", zap.Error(err))
			}
			act.Event("transfer.recorded",
				zap.String("filename", rec.Filename),
				zap.String("target_path", rec.TargetPath),
				zap.Int64("size", rec.Size),
				zap.String("status", string(rec.Status)),
				zap.String("error", rec.ErrorMsg))
		},
		func(msg string) {
			if err := errlog.Append(msg); err != nil {
				logger.Log.Warn("failed to append error log", zap.Error(err))
			}
			act.Error("sync.error", zap.String("message", msg))
		},
	)

	return m
}

// SetTaskAPIFactory overrides the Jellyfin client constructor; test hook.
func (m *Manager) SetTaskAPIFactory(f TaskAPIFactory) {
	m.newAPI = f
}

func (m *Manager) CurrentStatus() model.StatusSnapshot {
	return m.board.Snapshot()
}

// StartMirror resolves the stored configuration and launches the mirror
// worker.
func (m *Manager) StartMirror() (model.StatusSnapshot, error) {
	cfg, err := m.store.SftpConfig()
	if err != nil {
		return m.board.Snapshot(), fmt.Errorf("failed to load sync config: %w", err)
	}
	return m.startMirrorWith(cfg)
}

// startMirrorWith enforces the run preconditions synchronously, so callers
// get MissingCredentials or SyncInProgress before any worker exists, and the
// board is left untouched on rejection.
func (m *Manager) startMirrorWith(cfg model.SftpConfig) (model.StatusSnapshot, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" || cfg.RemoteRoot == "" || cfg.LocalRoot == "" {
		return m.board.Snapshot(), mirror.ErrMissingCredentials
	}

	m.mu.Lock()
	if m.syncActive {
		m.mu.Unlock()
		return m.board.Snapshot(), ErrSyncInProgress
	}
	sig := stop.NewSignal()
	m.syncActive = true
	m.syncStop = sig
	m.mu.Unlock()

	if last, err := m.store.LastSyncTime(); err == nil {
		m.board.SetLastSyncTime(last)
	}
	m.board.ResetStats()
	m.board.ResetNeutral(model.StateConnecting, "Connecting to SFTP…")

	m.act.Event("sync.start",
		zap.String("host", cfg.Host),
		zap.String("remote_root", cfg.RemoteRoot))

	go m.runMirror(cfg.Clone(), sig)

	return m.board.Snapshot(), nil
}

func (m *Manager) runMirror(cfg model.SftpConfig, sig *stop.Signal) {
	var cutoff time.Time
	if wm, err := m.store.LastSyncTime(); err == nil && wm != nil {
		cutoff = *wm
	}
	cutoff = cfg.ResolveCutoff(cutoff)

	stats, err := m.engine.Run(cfg, cutoff, sig)

	triggerJellyfin := false
	switch {
	case err == nil:
		now := time.Now()
		if err := m.store.RecordLastSync(now); err != nil {
			logger.Log.Warn("failed to record watermark", zap.Error(err))
		}
		m.board.SetLastSyncTime(&now)
		m.board.ResetNeutral(model.StateIdle, "Idle")
		triggerJellyfin = stats.FilesDownloaded > 0 && m.shouldRunJellyfinAfterSync()
		m.act.Event("sync.completed",
			zap.Int("files_downloaded", stats.FilesDownloaded),
			zap.Int64("bytes_downloaded", stats.BytesDownloaded),
			zap.Int("errors", stats.Errors),
			zap.Bool("triggered_jellyfin", triggerJellyfin))

	case errors.Is(err, mirror.ErrStopped):
		m.board.ResetNeutral(model.StateIdle, "Stopped by user")
		m.act.Event("sync.stopped")

	default:
		logger.Log.Error("sync worker failed", zap.Error(err))
		if aerr := m.errlog.Append(err.Error()); aerr != nil {
			logger.Log.Warn("failed to append error log", zap.Error(aerr))
		}
		m.act.Error("sync.error", zap.String("message", err.Error()))
		m.board.SetLastError(err.Error())
		m.board.ResetNeutral(model.StateError, "Sync failed")
	}

	m.mu.Lock()
	m.syncActive = false
	m.syncStop = nil
	m.mu.Unlock()

	// Chaining failures are logged, never escalated into the mirror's state.
	if triggerJellyfin {
		logger.Log.Info("launching jellyfin tasks after successful sync")
		if _, err := m.StartJellyfinTasks(); err != nil {
			logger.Log.Warn("unable to start jellyfin tasks after sync", zap.Error(err))
			m.act.Warning("jellyfin.post_sync_failed", zap.Error(err))
		}
	}
}

// StopActive signals whichever workers are alive and force-closes the mirror
// session to unblock in-flight reads. Harmless when nothing is running.
func (m *Manager) StopActive() model.StatusSnapshot {
	m.mu.Lock()
	stopSync := m.syncActive
	syncSig := m.syncStop
	stopJellyfin := m.jellyfinActive
	jellyfinSig := m.jellyfinStop
	m.mu.Unlock()

	if !stopSync && !stopJellyfin {
		logger.Log.Debug("stop requested but no active worker")
		return m.board.Snapshot()
	}

	m.act.Event("sync.stop_requested",
		zap.Bool("stop_sync", stopSync),
		zap.Bool("stop_jellyfin", stopJellyfin))

	if stopSync {
		m.board.SetPhase(model.StateStopping, "Stopping sync…")
		syncSig.Trigger()
		m.engine.Abort()
	}
	if stopJellyfin {
		m.board.SetPhase(model.StateJellyfin, "Stopping Jellyfin tasks…")
		jellyfinSig.Trigger()
	}

	return m.board.Snapshot()
}

// MirrorActive reports whether a mirror worker is currently alive.
func (m *Manager) MirrorActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncActive
}

func (m *Manager) StartJellyfinTasks() (model.StatusSnapshot, error) {
	cfg, err := m.store.JellyfinConfig()
	if err != nil {
		return m.board.Snapshot(), fmt.Errorf("failed to load jellyfin config: %w", err)
	}

	m.mu.Lock()
	if m.syncActive {
		m.mu.Unlock()
		return m.board.Snapshot(), ErrSyncActive
	}
	if m.jellyfinActive {
		m.mu.Unlock()
		return m.board.Snapshot(), ErrJellyfinRunning
	}
	if !cfg.Tested {
		m.mu.Unlock()
		return m.board.Snapshot(), ErrNotTested
	}
	sig := stop.NewSignal()
	m.jellyfinActive = true
	m.jellyfinStop = sig
	m.mu.Unlock()

	m.board.ResetNeutral(model.StateJellyfin, "Starting Jellyfin tasks…")
	m.act.Event("jellyfin.run_started")

	go m.runJellyfin(cfg, sig)

	return m.board.Snapshot(), nil
}

func (m *Manager) runJellyfin(cfg model.JellyfinConfig, sig *stop.Signal) {
	runErr := func() error {
		api, err := m.newAPI(cfg.ServerURL, cfg.APIKey)
		if err != nil {
			return err
		}
		runner := jellyfin.NewRunner(api, cfg.IncludeHiddenTasks)
		return runner.Run(cfg.EnabledTasks(), sig, m.handleJellyfinProgress)
	}()

	switch {
	case runErr == nil:
		m.board.ResetNeutral(model.StateIdle, "Idle")
		m.act.Event("jellyfin.run_completed")

	case errors.Is(runErr, jellyfin.ErrCancelled):
		logger.Log.Info("jellyfin tasks cancelled by user")
		m.board.ResetNeutral(model.StateIdle, "Jellyfin tasks cancelled")
		m.act.Event("jellyfin.run_cancelled")

	default:
		logger.Log.Error("jellyfin tasks failed", zap.Error(runErr))
		msg := fmt.Sprintf("Jellyfin tasks failed: %v", runErr)
		if aerr := m.errlog.Append(msg); aerr != nil {
			logger.Log.Warn("failed to append error log", zap.Error(aerr))
		}
		m.board.SetLastError(runErr.Error())
		m.board.ResetNeutral(model.StateError, "Jellyfin tasks failed")
		m.act.Error("jellyfin.run_failed", zap.Error(runErr))
	}

	m.mu.Lock()
	m.jellyfinActive = false
	m.jellyfinStop = nil
	m.mu.Unlock()
}

func (m *Manager) shouldRunJellyfinAfterSync() bool {
	cfg, err := m.store.JellyfinConfig()
	if err != nil {
		logger.Log.Warn("unable to read jellyfin configuration", zap.Error(err))
		return false
	}
	return cfg.Tested && len(cfg.EnabledTasks()) > 0
}

func (m *Manager) handleJellyfinProgress(taskName string, percent float64, state string, index, total int) {
	if total < 1 {
		total = 1
	}
	overall := int(((float64(index-1) + percent/100) / float64(total)) * 100)
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	message := fmt.Sprintf("Jellyfin tasks (%d/%d) - %s", index, total, state)
	detail := fmt.Sprintf("%s (%.0f%%)", state, percent)
	m.board.SetJellyfinTask(message, taskName, detail, overall)
}

// TestJellyfin verifies connectivity by fetching the task list. With persist
// set, a successful probe marks the stored config as tested.
func (m *Manager) TestJellyfin(serverURL, apiKey string, includeHidden, persist bool) error {
	if serverURL == "" || apiKey == "" {
		cfg, err := m.store.JellyfinConfig()
		if err != nil {
			return err
		}
		serverURL = cfg.ServerURL
		apiKey = cfg.APIKey
		includeHidden = true
		persist = true
	}

	api, err := m.newAPI(serverURL, apiKey)
	if err != nil {
		return err
	}
	if _, err := api.FetchTasks(includeHidden); err != nil {
		return err
	}

	if persist {
		if err := m.store.SetJellyfinTested(true); err != nil {
			return err
		}
	}
	m.act.Event("jellyfin.test_success", zap.String("server_url", serverURL))
	return nil
}

func (m *Manager) ListJellyfinTasks() ([]model.JellyfinTask, error) {
	cfg, err := m.store.JellyfinConfig()
	if err != nil {
		return nil, err
	}
	api, err := m.newAPI(cfg.ServerURL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return api.FetchTasks(cfg.IncludeHiddenTasks)
}
