package model

import (
	"strings"
	"time"
)

// SftpConfig is the fully resolved configuration for one mirror run. The
// Password field is only populated on the copy handed to a run; persisted
// reads mask it.
type SftpConfig struct {
	Host                string   `json:"host"`
	Port                int      `json:"port"`
	Username            string   `json:"username"`
	Password            string   `json:"password"`
	RemoteRoot          string   `json:"remote_root"`
	LocalRoot           string   `json:"local_root"`
	SkipFolders         []string `json:"skip_folders"`
	SyncIntervalMinutes int      `json:"sync_interval_minutes"`
	AutoSyncEnabled     bool     `json:"auto_sync_enabled"`
	StartAfter          string   `json:"start_after,omitempty"`
}

func DefaultSftpConfig() SftpConfig {
	return SftpConfig{
		Port:                22,
		SyncIntervalMinutes: 240,
		SkipFolders:         []string{},
	}
}

// Clone returns a deep copy so a running worker never shares slices with the
// caller's value.
func (c SftpConfig) Clone() SftpConfig {
	out := c
	out.SkipFolders = append([]string(nil), c.SkipFolders...)
	return out
}

// SkipSet lowercases the configured folder names for case-insensitive pruning.
func (c SftpConfig) SkipSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.SkipFolders))
	for _, name := range c.SkipFolders {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// ResolveCutoff picks the timestamp below which unchanged remote files are
// skipped: a valid manual StartAfter wins, otherwise the stored watermark.
func (c SftpConfig) ResolveCutoff(watermark time.Time) time.Time {
	if c.StartAfter != "" {
		if t, err := time.Parse(time.RFC3339, c.StartAfter); err == nil {
			return t
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", c.StartAfter, time.Local); err == nil {
			return t
		}
	}
	return watermark
}

// SelectedTask is one entry of the user-ordered Jellyfin task list. LegacyID
// carries the server-side task id from before keys were stable, used as a
// fallback during resolution.
type SelectedTask struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Order    int    `json:"order"`
	LegacyID string `json:"legacy_id,omitempty"`
}

type JellyfinConfig struct {
	ServerURL          string         `json:"server_url"`
	APIKey             string         `json:"api_key"`
	IncludeHiddenTasks bool           `json:"include_hidden_tasks"`
	SelectedTasks      []SelectedTask `json:"selected_tasks"`
	Tested             bool           `json:"tested"`
}

func DefaultJellyfinConfig() JellyfinConfig {
	return JellyfinConfig{
		IncludeHiddenTasks: true,
		SelectedTasks:      []SelectedTask{},
	}
}

func (c JellyfinConfig) Clone() JellyfinConfig {
	out := c
	out.SelectedTasks = append([]SelectedTask(nil), c.SelectedTasks...)
	return out
}

// EnabledTasks returns the enabled subset sorted ascending by Order.
func (c JellyfinConfig) EnabledTasks() []SelectedTask {
	tasks := make([]SelectedTask, 0, len(c.SelectedTasks))
	for _, t := range c.SelectedTasks {
		if t.Enabled {
			tasks = append(tasks, t)
		}
	}
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].Order < tasks[j-1].Order; j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
	return tasks
}

// NormalizeServerURL adds a scheme when missing and strips trailing slashes.
func NormalizeServerURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		url = "http://" + url
	}
	return strings.TrimRight(url, "/")
}
