package daemon_test

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harborsync/internal/activity"
	"harborsync/internal/daemon"
	"harborsync/internal/jellyfin"
	"harborsync/internal/mirror"
	"harborsync/internal/model"
	"harborsync/internal/status"
	"harborsync/internal/store"
)

// blockingSession parks List until the session is closed, simulating a slow
// remote so tests can observe a run mid-flight.
type blockingSession struct {
	once    sync.Once
	release chan struct{}
}

func newBlockingSession() *blockingSession {
	return &blockingSession{release: make(chan struct{})}
}

func (s *blockingSession) List(path string) ([]mirror.Entry, error) {
	<-s.release
	return nil, io.ErrClosedPipe
}

func (s *blockingSession) Open(path string) (io.ReadCloser, error) {
	return nil, io.ErrClosedPipe
}

func (s *blockingSession) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

type emptySession struct{}

func (emptySession) List(path string) ([]mirror.Entry, error) { return nil, nil }
func (emptySession) Open(path string) (io.ReadCloser, error)  { return nil, io.ErrClosedPipe }
func (emptySession) Close() error                             { return nil }

type testHarness struct {
	board   *status.Board
	store   *store.Store
	manager *daemon.Manager
}

func newHarness(t *testing.T, dial mirror.Dialer) *testHarness {
	t.Helper()

	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "test.db"))
	require.NoError(t, err)

	act, err := activity.Open(dataDir)
	require.NoError(t, err)
	errlog := activity.OpenErrorLog(dataDir)

	board := status.NewBoard()
	manager := daemon.NewManager(board, st, act, errlog, dial)

	return &testHarness{board: board, store: st, manager: manager}
}

func saveValidConfig(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.SaveSftpConfig(model.SftpConfig{
		Host:                "nas.local",
		Port:                22,
		Username:            "media",
		Password:            "secret",
		RemoteRoot:          "/remote",
		LocalRoot:           t.TempDir(),
		SyncIntervalMinutes: 60,
	}))
}

func waitForIdle(t *testing.T, m *daemon.Manager) {
	t.Helper()
	require.Eventually(t, func() bool { return !m.MirrorActive() }, 5*time.Second, 10*time.Millisecond)
}

func TestStartMirrorRejectsMissingCredentials(t *testing.T) {
	h := newHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return emptySession{}, nil
	})

	_, err := h.manager.StartMirror()
	require.ErrorIs(t, err, mirror.ErrMissingCredentials)
	require.Equal(t, model.StateIdle, h.board.State())
	require.False(t, h.manager.MirrorActive())
}

func TestStartMirrorRejectsSecondRun(t *testing.T) {
	sess := newBlockingSession()
	h := newHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return sess, nil
	})
	saveValidConfig(t, h.store)

	_, err := h.manager.StartMirror()
	require.NoError(t, err)
	require.True(t, h.manager.MirrorActive())

	_, err = h.manager.StartMirror()
	require.ErrorIs(t, err, daemon.ErrSyncInProgress)

	h.manager.StopActive()
	waitForIdle(t, h.manager)
}

func TestStopActiveUnblocksRun(t *testing.T) {
	sess := newBlockingSession()
	h := newHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return sess, nil
	})
	saveValidConfig(t, h.store)

	_, err := h.manager.StartMirror()
	require.NoError(t, err)

	h.manager.StopActive()

	waitForIdle(t, h.manager)
	require.Eventually(t, func() bool {
		s := h.board.Snapshot()
		return s.State == model.StateIdle && s.Message == "Stopped by user"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSuccessfulRunRecordsWatermark(t *testing.T) {
	h := newHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return emptySession{}, nil
	})
	saveValidConfig(t, h.store)

	before := time.Now().Add(-time.Second)
	_, err := h.manager.StartMirror()
	require.NoError(t, err)
	waitForIdle(t, h.manager)

	require.Eventually(t, func() bool {
		mark, err := h.store.LastSyncTime()
		return err == nil && mark != nil && mark.After(before)
	}, 5*time.Second, 10*time.Millisecond)
}

type stubAPI struct {
	tasks []model.JellyfinTask
}

func (a *stubAPI) FetchTasks(includeHidden bool) ([]model.JellyfinTask, error) { return a.tasks, nil }
func (a *stubAPI) StartTask(id string) error                                   { return nil }
func (a *stubAPI) PollTask(id string) (jellyfin.TaskStatus, error) {
	return jellyfin.TaskStatus{Percent: 100, State: "Completed"}, nil
}
func (a *stubAPI) CancelTask(id string) error { return nil }

func saveTestedJellyfinConfig(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.SaveJellyfinConfig(model.JellyfinConfig{
		ServerURL: "http://media.local:8096",
		APIKey:    "key",
		Tested:    true,
		SelectedTasks: []model.SelectedTask{
			{Key: "RefreshLibrary", Name: "Scan Media Library", Enabled: true},
		},
	}))
}

func TestStartJellyfinTasksRequiresTestedConfig(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.SaveJellyfinConfig(model.JellyfinConfig{
		ServerURL: "http://media.local", APIKey: "key",
	}))

	_, err := h.manager.StartJellyfinTasks()
	require.ErrorIs(t, err, daemon.ErrNotTested)
}

func TestStartJellyfinTasksRejectedDuringSync(t *testing.T) {
	sess := newBlockingSession()
	h := newHarness(t, func(cfg model.SftpConfig) (mirror.Session, error) {
		return sess, nil
	})
	saveValidConfig(t, h.store)
	saveTestedJellyfinConfig(t, h.store)

	_, err := h.manager.StartMirror()
	require.NoError(t, err)

	_, err = h.manager.StartJellyfinTasks()
	require.ErrorIs(t, err, daemon.ErrSyncActive)

	h.manager.StopActive()
	waitForIdle(t, h.manager)
}

func TestJellyfinRunCompletes(t *testing.T) {
	h := newHarness(t, nil)
	saveTestedJellyfinConfig(t, h.store)

	h.manager.SetTaskAPIFactory(func(serverURL, apiKey string) (jellyfin.API, error) {
		return &stubAPI{tasks: []model.JellyfinTask{
			{ID: "id-1", Key: "RefreshLibrary", Name: "Scan Media Library"},
		}}, nil
	})

	_, err := h.manager.StartJellyfinTasks()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := h.board.Snapshot()
		return s.State == model.StateIdle && s.Message == "Idle"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTestJellyfinPersistsTestedFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.manager.SetTaskAPIFactory(func(serverURL, apiKey string) (jellyfin.API, error) {
		return &stubAPI{}, nil
	})

	require.NoError(t, h.manager.TestJellyfin("http://media.local", "key", true, true))

	cfg, err := h.store.JellyfinConfig()
	require.NoError(t, err)
	require.True(t, cfg.Tested)
}
