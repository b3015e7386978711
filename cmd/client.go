package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// api builds the client the control commands use to reach the local daemon.
func api() *resty.Client {
	c := resty.New().
		SetBaseURL(daemonURL()).
		SetTimeout(30 * time.Second)
	if token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// checkResponse unpacks the daemon's error envelope for non-2xx responses.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	if resp.IsError() {
		var body struct {
			Error string `json:"error"`
		}
		if uerr := json.Unmarshal(resp.Body(), &body); uerr == nil && body.Error != "" {
			return fmt.Errorf("%s", body.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status())
	}
	return nil
}

func getJSON(path string, out any) error {
	resp, err := api().R().Get(path)
	if cerr := checkResponse(resp, err); cerr != nil {
		return cerr
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func postJSON(path string, out any) error {
	resp, err := api().R().Post(path)
	if cerr := checkResponse(resp, err); cerr != nil {
		return cerr
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
