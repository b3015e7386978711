package activity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrorLog is the plain-text, one-line-per-failure log the UI offers for
// download. It stays readable without tooling, unlike the JSON activity log.
type ErrorLog struct {
	mu   sync.Mutex
	path string
}

func OpenErrorLog(dataDir string) *ErrorLog {
	return &ErrorLog{path: filepath.Join(dataDir, "sync_errors.log")}
}

func (l *ErrorLog) Path() string {
	return l.path
}

func (l *ErrorLog) Append(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	line := fmt.Sprintf("%s - %s\n", time.Now().Format("2006-01-02 15:04:05"), msg)
	_, err = file.WriteString(line)
	return err
}

func (l *ErrorLog) Tail(limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

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

func (l *ErrorLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return os.WriteFile(l.path, nil, 0644)
}
