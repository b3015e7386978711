package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"harborsync/internal/model"
)

func splitFolders(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinFolders(folders []string) string {
	cleaned := make([]string, 0, len(folders))
	for _, f := range folders {
		if f = strings.TrimSpace(f); f != "" {
			cleaned = append(cleaned, f)
		}
	}
	return strings.Join(cleaned, ",")
}

func (s *Store) loadSftpRow() (SftpSettings, error) {
	var row SftpSettings
	err := s.db.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := model.DefaultSftpConfig()
		row = SftpSettings{Port: def.Port, SyncIntervalMinutes: def.SyncIntervalMinutes}
		if err := s.db.Create(&row).Error; err != nil {
			return row, fmt.Errorf("failed to seed sftp settings: %w", err)
		}
		return row, nil
	}
	return row, err
}

// SftpConfig returns the stored configuration with the real password. Callers
// facing the API mask it themselves via MaskSftpConfig.
func (s *Store) SftpConfig() (model.SftpConfig, error) {
	row, err := s.loadSftpRow()
	if err != nil {
		return model.SftpConfig{}, err
	}

	return model.SftpConfig{
		Host:                row.Host,
		Port:                row.Port,
		Username:            row.Username,
		Password:            row.Password,
		RemoteRoot:          row.RemoteRoot,
		LocalRoot:           row.LocalRoot,
		SkipFolders:         splitFolders(row.SkipFolders),
		SyncIntervalMinutes: row.SyncIntervalMinutes,
		AutoSyncEnabled:     row.AutoSyncEnabled,
		StartAfter:          row.StartAfter,
	}, nil
}

// SaveSftpConfig persists the payload. A masked password keeps the stored
// secret as long as the connection identity (user@host:port) is unchanged;
// changing the identity drops the stale secret.
func (s *Store) SaveSftpConfig(cfg model.SftpConfig) error {
	row, err := s.loadSftpRow()
	if err != nil {
		return err
	}

	password := cfg.Password
	if password == SecretMask {
		sameIdentity := row.Host == cfg.Host && row.Port == cfg.Port && row.Username == cfg.Username
		if sameIdentity {
			password = row.Password
		} else {
			password = ""
		}
	}

	row.Host = cfg.Host
	row.Port = cfg.Port
	row.Username = cfg.Username
	row.Password = password
	row.RemoteRoot = cfg.RemoteRoot
	row.LocalRoot = cfg.LocalRoot
	row.SkipFolders = joinFolders(cfg.SkipFolders)
	row.SyncIntervalMinutes = cfg.SyncIntervalMinutes
	row.AutoSyncEnabled = cfg.AutoSyncEnabled
	row.StartAfter = cfg.StartAfter

	return s.db.Save(&row).Error
}

// MaskSftpConfig replaces a stored password with the mask for API responses.
func MaskSftpConfig(cfg model.SftpConfig) (model.SftpConfig, bool) {
	masked := cfg.Clone()
	has := masked.Password != ""
	if has {
		masked.Password = SecretMask
	}
	return masked, has
}

func (s *Store) loadJellyfinRow() (JellyfinSettings, error) {
	var row JellyfinSettings
	err := s.db.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = JellyfinSettings{IncludeHiddenTasks: true, SelectedTasks: "[]"}
		if err := s.db.Create(&row).Error; err != nil {
			return row, fmt.Errorf("failed to seed jellyfin settings: %w", err)
		}
		return row, nil
	}
	return row, err
}

func decodeSelectedTasks(raw string) []model.SelectedTask {
	if raw == "" {
		return []model.SelectedTask{}
	}

	// Older builds stored entries with "id" instead of "key"; carry those
	// forward as legacy ids so task resolution can still match them.
	var entries []struct {
		model.SelectedTask
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return []model.SelectedTask{}
	}

	tasks := make([]model.SelectedTask, 0, len(entries))
	for _, e := range entries {
		task := e.SelectedTask
		if task.Key == "" && e.ID != "" {
			task.LegacyID = e.ID
			task.Key = e.ID
		}
		if task.Key == "" {
			task.Key = task.Name
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func (s *Store) JellyfinConfig() (model.JellyfinConfig, error) {
	row, err := s.loadJellyfinRow()
	if err != nil {
		return model.JellyfinConfig{}, err
	}

	return model.JellyfinConfig{
		ServerURL:          model.NormalizeServerURL(row.ServerURL),
		APIKey:             row.APIKey,
		IncludeHiddenTasks: row.IncludeHiddenTasks,
		SelectedTasks:      decodeSelectedTasks(row.SelectedTasks),
		Tested:             row.Tested,
	}, nil
}

func (s *Store) SaveJellyfinConfig(cfg model.JellyfinConfig) error {
	row, err := s.loadJellyfinRow()
	if err != nil {
		return err
	}

	serverURL := model.NormalizeServerURL(cfg.ServerURL)
	apiKey := cfg.APIKey
	if apiKey == SecretMask {
		if model.NormalizeServerURL(row.ServerURL) == serverURL {
			apiKey = row.APIKey
		} else {
			apiKey = ""
		}
	}

	encoded, err := json.Marshal(cfg.SelectedTasks)
	if err != nil {
		return fmt.Errorf("failed to encode selected tasks: %w", err)
	}

	row.ServerURL = serverURL
	row.APIKey = apiKey
	row.IncludeHiddenTasks = cfg.IncludeHiddenTasks
	row.SelectedTasks = string(encoded)
	row.Tested = cfg.Tested

	return s.db.Save(&row).Error
}

func (s *Store) SetJellyfinTested(tested bool) error {
	row, err := s.loadJellyfinRow()
	if err != nil {
		return err
	}
	row.Tested = tested
	return s.db.Save(&row).Error
}

func MaskJellyfinConfig(cfg model.JellyfinConfig) (model.JellyfinConfig, bool) {
	masked := cfg.Clone()
	has := masked.APIKey != ""
	if has {
		masked.APIKey = SecretMask
	}
	return masked, has
}

// LastSyncTime returns the watermark, or nil when no sync has completed yet.
func (s *Store) LastSyncTime() (*time.Time, error) {
	var mark SyncMark
	err := s.db.First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := mark.LastSyncAt
	return &t, nil
}

func (s *Store) RecordLastSync(t time.Time) error {
	var mark SyncMark
	err := s.db.First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&SyncMark{LastSyncAt: t}).Error
	}
	if err != nil {
		return err
	}
	mark.LastSyncAt = t
	return s.db.Save(&mark).Error
}
