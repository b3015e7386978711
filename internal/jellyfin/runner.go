package jellyfin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"harborsync/internal/logger"
	"harborsync/internal/model"
	"harborsync/internal/stop"
)

const maxPollFailures = 3

var (
	ErrNoTasksSelected = errors.New("no jellyfin tasks have been selected")

	// ErrCancelled marks a user-requested stop of the task run, distinct from
	// a genuine failure.
	ErrCancelled = errors.New("jellyfin run cancelled")

	ErrTaskNotFound = errors.New("task not found on the server")
)

// ProgressFunc receives every poll result. Index is one-based so the caller
// can derive an overall cross-task fraction.
type ProgressFunc func(taskName string, percent float64, state string, index, total int)

type Runner struct {
	api           API
	includeHidden bool
	pollInterval  time.Duration
}

func NewRunner(api API, includeHidden bool) *Runner {
	return &Runner{
		api:           api,
		includeHidden: includeHidden,
		pollInterval:  time.Second,
	}
}

// SetPollInterval overrides the default 1s cadence; used by tests and by
// deployments with slow servers.
func (r *Runner) SetPollInterval(d time.Duration) {
	r.pollInterval = d
}

// Run executes the enabled tasks in order, one at a time. The task map is
// fetched once up front so every task resolves against the same fresh view of
// the server.
func (r *Runner) Run(tasks []model.SelectedTask, sig *stop.Signal, onProgress ProgressFunc) error {
	if len(tasks) == 0 {
		return ErrNoTasksSelected
	}

	remote, err := r.api.FetchTasks(r.includeHidden)
	if err != nil {
		return fmt.Errorf("failed to fetch task list: %w", err)
	}

	keyMap := make(map[string]model.JellyfinTask, len(remote))
	idMap := make(map[string]model.JellyfinTask, len(remote))
	nameMap := make(map[string]model.JellyfinTask, len(remote))
	for _, t := range remote {
		keyMap[t.Key] = t
		idMap[t.ID] = t
		nameMap[t.Name] = t
	}

	total := len(tasks)
	logger.Log.Info("jellyfin run started", zap.Int("tasks", total))

	for i, task := range tasks {
		index := i + 1
		if sig.Triggered() {
			return ErrCancelled
		}

		onProgress(task.Name, 0, "Starting", index, total)

		resolved, ok := resolveTask(task, keyMap, idMap, nameMap)
		if !ok {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, task.Name)
		}

		if err := r.api.StartTask(resolved.ID); err != nil {
			return fmt.Errorf("failed to start %q: %w", task.Name, err)
		}

		if err := r.pollUntilDone(task.Name, resolved.ID, sig, onProgress, index, total); err != nil {
			return err
		}
	}

	logger.Log.Info("jellyfin run finished", zap.Int("tasks", total))
	return nil
}

// resolveTask matches a configured entry against the server's task list:
// stable key first, then the pre-rename legacy id, then the display name.
func resolveTask(task model.SelectedTask, keyMap, idMap, nameMap map[string]model.JellyfinTask) (model.JellyfinTask, bool) {
	if t, ok := keyMap[task.Key]; ok && task.Key != "" {
		return t, true
	}
	if task.LegacyID != "" {
		if t, ok := idMap[task.LegacyID]; ok {
			return t, true
		}
	}
	if t, ok := nameMap[task.Name]; ok && task.Name != "" {
		return t, true
	}
	return model.JellyfinTask{}, false
}

func (r *Runner) pollUntilDone(name, id string, sig *stop.Signal, onProgress ProgressFunc, index, total int) error {
	failures := 0
	retryWait := backoff.NewConstantBackOff(2 * r.pollInterval)

	for {
		if sig.Triggered() {
			// Best effort: a failure to cancel remotely must not mask the
			// cancelled outcome.
			if err := r.api.CancelTask(id); err != nil {
				logger.Log.Warn("failed to cancel task remotely",
					zap.String("task", name), zap.Error(err))
			}
			return ErrCancelled
		}

		st, err := r.api.PollTask(id)
		if err != nil {
			failures++
			if failures >= maxPollFailures {
				return fmt.Errorf("failed to poll %q: %w", name, err)
			}
			r.sleep(retryWait.NextBackOff(), sig)
			continue
		}
		failures = 0
		retryWait.Reset()

		onProgress(name, st.Percent, st.State, index, total)

		if st.Percent >= 100 || isTerminalState(st.State) {
			logger.Log.Info("jellyfin task complete",
				zap.String("task", name),
				zap.Float64("percent", st.Percent),
				zap.String("state", st.State))
			return nil
		}

		r.sleep(r.pollInterval, sig)
	}
}

// sleep waits d or until the stop signal fires; returns false when the wait
// was cut short.
func (r *Runner) sleep(d time.Duration, sig *stop.Signal) bool {
	select {
	case <-time.After(d):
		return true
	case <-sig.Done():
		return false
	}
}

func isTerminalState(state string) bool {
	switch strings.ToLower(state) {
	case "idle", "completed", "completedwitherrors":
		return true
	}
	return false
}
