package daemon

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"harborsync/internal/activity"
	"harborsync/internal/logger"
	"harborsync/internal/mirror"
	"harborsync/internal/model"
	"harborsync/internal/status"
	"harborsync/internal/store"
)

const retryAfterBusy = 30 * time.Second

// Scheduler owns the single future re-run timer for the mirror job. Arming
// always cancels the previous timer first, so at most one fire is ever
// pending.
type Scheduler struct {
	manager *Manager
	store   *store.Store
	board   *status.Board
	act     *activity.Log

	mu      sync.Mutex
	timer   *time.Timer
	nextRun *time.Time
	cfg     *model.SftpConfig
}

func NewScheduler(manager *Manager, st *store.Store, board *status.Board, act *activity.Log) *Scheduler {
	return &Scheduler{
		manager: manager,
		store:   st,
		board:   board,
		act:     act,
	}
}

func cadenceDelay(cfg model.SftpConfig) time.Duration {
	minutes := cfg.SyncIntervalMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

// UpdateConfig replaces the held configuration. An armed timer is re-armed
// with the new cadence; an in-flight run is left alone.
func (s *Scheduler) UpdateConfig(cfg model.SftpConfig) {
	copied := cfg.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = &copied
	if s.nextRun != nil {
		s.armTimerLocked(cadenceDelay(copied))
	}
}

// ScheduleNext arms the timer one cadence from now, replacing any pending
// fire. With a nil cfg the held configuration is used; without one the call
// is a no-op.
func (s *Scheduler) ScheduleNext(cfg *model.SftpConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg != nil {
		copied := cfg.Clone()
		s.cfg = &copied
	}
	if s.cfg == nil {
		return
	}
	s.armTimerLocked(cadenceDelay(*s.cfg))
}

// CancelSchedule drops any pending fire and clears the published next-run
// time, independent of whether a run is active.
func (s *Scheduler) CancelSchedule() {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.nextRun = nil
	s.mu.Unlock()

	s.board.SetNextSyncTime(nil)
	s.act.Event("autosync.cancelled")
}

func (s *Scheduler) Shutdown() {
	s.CancelSchedule()

	s.mu.Lock()
	s.cfg = nil
	s.mu.Unlock()
}

// NextRunTime returns the pending fire time, or nil when unarmed.
func (s *Scheduler) NextRunTime() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextRun == nil {
		return nil
	}
	t := *s.nextRun
	return &t
}

// EnsureStartOnRestart triggers one immediate run after process start when
// auto-sync is enabled and the mirror is resting. Rejections are logged and
// swallowed; a restart must never crash on a busy or misconfigured mirror.
func (s *Scheduler) EnsureStartOnRestart() {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if cfg == nil || !cfg.AutoSyncEnabled {
		return
	}

	state := s.board.State()
	if state != model.StateIdle && state != model.StateError {
		return
	}

	s.act.Event("autosync.restart_trigger",
		zap.String("host", cfg.Host),
		zap.String("remote_root", cfg.RemoteRoot))

	_, err := s.manager.startMirrorWith(*cfg)
	switch {
	case err == nil:
		s.ScheduleNext(cfg)
	case errors.Is(err, ErrSyncInProgress):
		s.act.Event("autosync.restart_skipped", zap.String("reason", "already_running"))
	default:
		s.act.Event("autosync.restart_failed", zap.Error(err))
	}
}

func (s *Scheduler) armTimerLocked(delay time.Duration) {
	s.cancelTimerLocked()

	next := time.Now().Add(delay)
	s.nextRun = &next
	s.timer = time.AfterFunc(delay, s.RunScheduled)

	s.board.SetNextSyncTime(&next)
	s.act.Event("autosync.timer_armed",
		zap.Duration("delay", delay),
		zap.Time("next_run", next))
}

func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
}

func (s *Scheduler) scheduleRetry(delay time.Duration) {
	if delay < 5*time.Second {
		delay = 5 * time.Second
	}
	s.mu.Lock()
	s.armTimerLocked(delay)
	s.mu.Unlock()
}

// RunScheduled fires when the timer elapses. The configuration is re-resolved
// from the store so edits made while the timer was pending take effect.
func (s *Scheduler) RunScheduled() {
	cfg, err := s.store.SftpConfig()
	if err != nil {
		logger.Log.Error("failed to resolve config for scheduled sync", zap.Error(err))
		s.mu.Lock()
		held := s.cfg
		s.mu.Unlock()
		if held != nil {
			s.scheduleRetry(cadenceDelay(*held))
		}
		return
	}

	copied := cfg.Clone()
	s.mu.Lock()
	s.cfg = &copied
	s.mu.Unlock()

	s.act.Event("autosync.run_triggered",
		zap.String("host", cfg.Host),
		zap.String("remote_root", cfg.RemoteRoot))

	_, err = s.manager.startMirrorWith(cfg)
	switch {
	case err == nil:
		s.ScheduleNext(nil)

	case errors.Is(err, ErrSyncInProgress):
		logger.Log.Info("scheduled sync skipped, a run is already active")
		s.scheduleRetry(retryAfterBusy)
		s.act.Event("autosync.run_skipped", zap.String("reason", "sync_in_progress"))

	case errors.Is(err, mirror.ErrMissingCredentials):
		logger.Log.Warn("scheduled sync cancelled", zap.Error(err))
		s.CancelSchedule()
		s.act.Event("autosync.run_cancelled", zap.String("reason", err.Error()))

	default:
		logger.Log.Error("failed to launch scheduled sync", zap.Error(err))
		s.scheduleRetry(cadenceDelay(cfg))
		s.act.Event("autosync.run_failed", zap.Error(err))
	}
}
