package activity_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"harborsync/internal/activity"
)

func TestEventTailAndClear(t *testing.T) {
	log, err := activity.Open(t.TempDir())
	require.NoError(t, err)

	log.Event("sync.start", zap.String("host", "nas.local"))
	log.Warning("sync.slow")
	log.Error("sync.error", zap.String("message", "boom"))

	lines, err := log.Tail(0)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], `"sync.start"`)
	require.Contains(t, lines[0], `"nas.local"`)
	require.Contains(t, lines[2], `"sync.error"`)

	lines, err = log.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"sync.slow"`)

	require.NoError(t, log.Clear())
	lines, err = log.Tail(0)
	require.NoError(t, err)
	require.Empty(t, lines)

	// Writes after a clear land in the fresh file.
	log.Event("sync.start")
	lines, err = log.Tail(0)
	require.NoError(t, err)
	require.Len(t, lines, 1)
}

func TestErrorLogAppendTailClear(t *testing.T) {
	errlog := activity.OpenErrorLog(t.TempDir())

	lines, err := errlog.Tail(0)
	require.NoError(t, err)
	require.Empty(t, lines)

	require.NoError(t, errlog.Append("cannot list /remote/broken: i/o timeout"))
	require.NoError(t, errlog.Append("/remote/bad.mkv - permission denied"))

	lines, err = errlog.Tail(0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "cannot list /remote/broken")
	require.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - `, lines[0])

	lines, err = errlog.Tail(1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "bad.mkv")

	require.NoError(t, errlog.Clear())
	lines, err = errlog.Tail(0)
	require.NoError(t, err)
	require.Empty(t, lines)
}
