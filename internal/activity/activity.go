// Package activity keeps a durable, append-only event log independent of the
// transient in-memory status. One JSON line per event so the UI can tail and
// download it.
package activity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *zap.Logger
}

func Open(dataDir string) (*Log, error) {
	path := filepath.Join(dataDir, "activity.log")

	l := &Log{path: path}
	if err := l.reopen(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) reopen() error {
	if l.file != nil {
		_ = l.file.Close()
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open activity log: %w", err)
	}
	l.file = file

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "action"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(file)),
		zapcore.InfoLevel,
	)

	l.logger = zap.New(core)
	return nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Event(action string, fields ...zap.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info(action, fields...)
}

func (l *Log) Warning(action string, fields ...zap.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Warn(action, fields...)
}

func (l *Log) Error(action string, fields ...zap.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Error(action, fields...)
}

// Tail returns up to limit of the newest entries, oldest first.
func (l *Log) Tail(limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.logger.Sync()
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	lines := []string{}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

// Clear truncates the log and reopens the writer so later events land in the
// fresh file.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.logger.Sync()
	if err := os.Truncate(l.path, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return l.reopen()
}
