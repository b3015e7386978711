// Package jellyfin drives the scheduled-task API of a companion Jellyfin or
// Emby server: listing tasks, starting them in a user-chosen order, and
// polling each one until it reaches a terminal state.
package jellyfin

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"harborsync/internal/model"
)

const requestTimeout = 20 * time.Second

var (
	ErrMissingServerURL = errors.New("jellyfin server URL is missing")
	ErrMissingAPIKey    = errors.New("jellyfin API key is missing")
)

// TaskStatus is one poll result. A 404 from the server is mapped to a
// synthetic completed status because Jellyfin garbage-collects finished runs.
type TaskStatus struct {
	Percent float64
	State   string
}

// API is the remote task surface the runner drives. PollTask errors are
// transport-level only; "task gone" is a successful completed poll.
type API interface {
	FetchTasks(includeHidden bool) ([]model.JellyfinTask, error)
	StartTask(id string) error
	PollTask(id string) (TaskStatus, error)
	CancelTask(id string) error
}

type scheduledTask struct {
	ID                        string  `json:"Id"`
	Key                       string  `json:"Key"`
	Name                      string  `json:"Name"`
	Description               string  `json:"Description"`
	IsHidden                  bool    `json:"IsHidden"`
	State                     string  `json:"State"`
	CurrentProgressPercentage float64 `json:"CurrentProgressPercentage"`
}

type Client struct {
	http *resty.Client
}

func NewClient(serverURL, apiKey string) (*Client, error) {
	url := model.NormalizeServerURL(serverURL)
	if url == "" {
		return nil, ErrMissingServerURL
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return &Client{
		http: resty.New().
			SetBaseURL(url).
			SetHeader("X-Emby-Token", apiKey).
			SetTimeout(requestTimeout),
	}, nil
}

func (c *Client) FetchTasks(includeHidden bool) ([]model.JellyfinTask, error) {
	var raw []scheduledTask
	resp, err := c.http.R().SetResult(&raw).Get("/ScheduledTasks")
	if err != nil {
		return nil, fmt.Errorf("scheduled tasks request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("scheduled tasks request failed: %s", resp.Status())
	}

	tasks := make([]model.JellyfinTask, 0, len(raw))
	for _, t := range raw {
		if !includeHidden && t.IsHidden {
			continue
		}
		key := t.Key
		if key == "" {
			key = t.ID
		}
		if key == "" {
			continue
		}
		tasks = append(tasks, model.JellyfinTask{
			ID:          t.ID,
			Key:         key,
			Name:        t.Name,
			Description: t.Description,
			IsHidden:    t.IsHidden,
		})
	}
	return tasks, nil
}

func (c *Client) StartTask(id string) error {
	resp, err := c.http.R().Post("/ScheduledTasks/Running/" + id)
	if err != nil {
		return fmt.Errorf("start request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("%s %s", resp.Status(), string(resp.Body()))
	}
	return nil
}

func (c *Client) PollTask(id string) (TaskStatus, error) {
	var raw scheduledTask
	resp, err := c.http.R().SetResult(&raw).Get("/ScheduledTasks/" + id)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("poll request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		// Finished tasks disappear from the API once cleaned up server-side.
		return TaskStatus{Percent: 100, State: "Completed"}, nil
	}
	if resp.IsError() {
		return TaskStatus{}, fmt.Errorf("poll request failed: %s", resp.Status())
	}

	state := raw.State
	if state == "" {
		state = "Unknown"
	}
	return TaskStatus{Percent: raw.CurrentProgressPercentage, State: state}, nil
}

func (c *Client) CancelTask(id string) error {
	resp, err := c.http.R().Delete("/ScheduledTasks/Running/" + id)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("cancel request failed: %s", resp.Status())
}
