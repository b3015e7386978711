package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harborsync/internal/model"
)

func TestSkipSetNormalizesNames(t *testing.T) {
	cfg := model.SftpConfig{SkipFolders: []string{" Extras ", "SAMPLE", "", "extras"}}

	set := cfg.SkipSet()
	require.Len(t, set, 2)
	require.Contains(t, set, "extras")
	require.Contains(t, set, "sample")
}

func TestResolveCutoff(t *testing.T) {
	watermark := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("falls back to watermark", func(t *testing.T) {
		cfg := model.SftpConfig{}
		require.Equal(t, watermark, cfg.ResolveCutoff(watermark))
	})

	t.Run("rfc3339 override wins", func(t *testing.T) {
		cfg := model.SftpConfig{StartAfter: "2026-05-01T00:00:00Z"}
		require.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), cfg.ResolveCutoff(watermark))
	})

	t.Run("local datetime override wins", func(t *testing.T) {
		cfg := model.SftpConfig{StartAfter: "2026-05-01T08:30:00"}
		want := time.Date(2026, 5, 1, 8, 30, 0, 0, time.Local)
		require.Equal(t, want, cfg.ResolveCutoff(watermark))
	})

	t.Run("unparseable override is ignored", func(t *testing.T) {
		cfg := model.SftpConfig{StartAfter: "yesterday"}
		require.Equal(t, watermark, cfg.ResolveCutoff(watermark))
	})
}

func TestCloneIsDeep(t *testing.T) {
	cfg := model.SftpConfig{SkipFolders: []string{"a"}}
	clone := cfg.Clone()
	clone.SkipFolders[0] = "b"

	require.Equal(t, "a", cfg.SkipFolders[0])
}

func TestEnabledTasksSortsByOrder(t *testing.T) {
	cfg := model.JellyfinConfig{SelectedTasks: []model.SelectedTask{
		{Key: "c", Enabled: true, Order: 3},
		{Key: "a", Enabled: true, Order: 1},
		{Key: "skipped", Enabled: false, Order: 0},
		{Key: "b", Enabled: true, Order: 2},
	}}

	tasks := cfg.EnabledTasks()
	require.Len(t, tasks, 3)
	require.Equal(t, "a", tasks[0].Key)
	require.Equal(t, "b", tasks[1].Key)
	require.Equal(t, "c", tasks[2].Key)
}

func TestNormalizeServerURL(t *testing.T) {
	require.Equal(t, "", model.NormalizeServerURL("  "))
	require.Equal(t, "http://jellyfin.local:8096", model.NormalizeServerURL("jellyfin.local:8096"))
	require.Equal(t, "https://media.example.com", model.NormalizeServerURL("https://media.example.com/"))
	require.Equal(t, "http://10.0.0.5", model.NormalizeServerURL("http://10.0.0.5///"))
}
