package daemon_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"harborsync/internal/activity"
	"harborsync/internal/daemon"
	"harborsync/internal/mirror"
	"harborsync/internal/model"
	"harborsync/internal/status"
	"harborsync/internal/store"
)

type schedHarness struct {
	*testHarness
	sched *daemon.Scheduler
}

func newSchedHarness(t *testing.T, dial mirror.Dialer) *schedHarness {
	t.Helper()

	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "test.db"))
	require.NoError(t, err)

	act, err := activity.Open(dataDir)
	require.NoError(t, err)
	errlog := activity.OpenErrorLog(dataDir)

	board := status.NewBoard()
	manager := daemon.NewManager(board, st, act, errlog, dial)
	sched := daemon.NewScheduler(manager, st, board, act)
	t.Cleanup(sched.Shutdown)

	return &schedHarness{
		testHarness: &testHarness{board: board, store: st, manager: manager},
		sched:       sched,
	}
}

func requireNextRunNear(t *testing.T, sched *daemon.Scheduler, want time.Duration) {
	t.Helper()
	next := sched.NextRunTime()
	require.NotNil(t, next)
	require.InDelta(t, float64(want), float64(time.Until(*next)), float64(2*time.Second))
}

func TestScheduleNextArmsOneCadenceOut(t *testing.T) {
	h := newSchedHarness(t, nil)

	cfg := model.SftpConfig{SyncIntervalMinutes: 60}
	h.sched.ScheduleNext(&cfg)
	requireNextRunNear(t, h.sched, time.Hour)
}

func TestScheduleNextWithoutConfigIsNoop(t *testing.T) {
	h := newSchedHarness(t, nil)

	h.sched.ScheduleNext(nil)
	require.Nil(t, h.sched.NextRunTime())
}

func TestCadenceHasOneMinuteFloor(t *testing.T) {
	h := newSchedHarness(t, nil)

	cfg := model.SftpConfig{SyncIntervalMinutes: 0}
	h.sched.ScheduleNext(&cfg)
	requireNextRunNear(t, h.sched, time.Minute)
}

func TestUpdateConfigRearmsPendingTimer(t *testing.T) {
	h := newSchedHarness(t, nil)

	cfg := model.SftpConfig{SyncIntervalMinutes: 60}
	h.sched.ScheduleNext(&cfg)

	cfg.SyncIntervalMinutes = 240
	h.sched.UpdateConfig(cfg)
	requireNextRunNear(t, h.sched, 4*time.Hour)
}

func TestUpdateConfigLeavesUnarmedSchedulerUnarmed(t *testing.T) {
	h := newSchedHarness(t, nil)

	h.sched.UpdateConfig(model.SftpConfig{SyncIntervalMinutes: 60, AutoSyncEnabled: true})
	require.Nil(t, h.sched.NextRunTime())
}

func TestCancelScheduleClearsNextRun(t *testing.T) {
	h := newSchedHarness(t, nil)

	cfg := model.SftpConfig{SyncIntervalMinutes: 60}
	h.sched.ScheduleNext(&cfg)
	require.NotNil(t, h.sched.NextRunTime())

	h.sched.CancelSchedule()
	require.Nil(t, h.sched.NextRunTime())
	require.Nil(t, h.board.Snapshot().NextSyncTime)
}

func TestRunScheduledRetriesWhileBusy(t *testing.T) {
	sess := newBlockingSession()
	h := newSchedHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return sess, nil
	})
	saveValidConfig(t, h.store)

	_, err := h.manager.StartMirror()
	require.NoError(t, err)

	h.sched.RunScheduled()
	requireNextRunNear(t, h.sched, 30*time.Second)

	h.manager.StopActive()
	waitForIdle(t, h.manager)
}

func TestRunScheduledCancelsOnMissingCredentials(t *testing.T) {
	h := newSchedHarness(t, nil)

	// The seeded config has no credentials, so the scheduled run must stand
	// down entirely instead of retrying forever.
	cfg := model.SftpConfig{SyncIntervalMinutes: 60}
	h.sched.ScheduleNext(&cfg)
	h.sched.RunScheduled()

	require.Nil(t, h.sched.NextRunTime())
}

func TestRunScheduledRetriesWhenConfigUnreadable(t *testing.T) {
	dataDir := t.TempDir()
	dbPath := filepath.Join(dataDir, "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)

	act, err := activity.Open(dataDir)
	require.NoError(t, err)
	errlog := activity.OpenErrorLog(dataDir)

	board := status.NewBoard()
	manager := daemon.NewManager(board, st, act, errlog, nil)
	sched := daemon.NewScheduler(manager, st, board, act)
	t.Cleanup(sched.Shutdown)

	sched.UpdateConfig(model.SftpConfig{SyncIntervalMinutes: 45})
	require.Nil(t, sched.NextRunTime())

	// Drop the settings table out from under the scheduler so the fire-time
	// config resolve fails.
	raw, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, raw.Migrator().DropTable(&store.SftpSettings{}))

	sched.RunScheduled()
	requireNextRunNear(t, sched, 45*time.Minute)
}

func TestRunScheduledReArmsAfterSuccess(t *testing.T) {
	h := newSchedHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return emptySession{}, nil
	})
	saveValidConfig(t, h.store)

	h.sched.RunScheduled()
	requireNextRunNear(t, h.sched, time.Hour)
	waitForIdle(t, h.manager)
}

func TestEnsureStartOnRestartHonorsAutoSyncFlag(t *testing.T) {
	h := newSchedHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return emptySession{}, nil
	})

	cfg := model.SftpConfig{
		Host: "nas.local", Port: 22, Username: "media", Password: "secret",
		RemoteRoot: "/remote", LocalRoot: t.TempDir(),
		SyncIntervalMinutes: 60,
	}

	h.sched.UpdateConfig(cfg)
	h.sched.EnsureStartOnRestart()
	require.Nil(t, h.sched.NextRunTime())

	cfg.AutoSyncEnabled = true
	h.sched.UpdateConfig(cfg)
	h.sched.EnsureStartOnRestart()
	requireNextRunNear(t, h.sched, time.Hour)
	waitForIdle(t, h.manager)
}
