// Package tui is a terminal dashboard for an aggregator.
package tui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/admin"
)

// Client talks to an aggregator's HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{Timeout: 5 * time.Second}}
}

// SirenResult is the decoded /api/siren response.
type SirenResult struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (admin.StatusJSON, error) {
	var st admin.StatusJSON
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}

// Siren posts action to /api/siren. A 400 response is returned as an error
// carrying the server's message.
func (c *Client) Siren(ctx context.Context, action string) (SirenResult, error) {
	var res SirenResult
	body, _ := json.Marshal(map[string]string{"action": action})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/siren", bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("siren: %s: %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("siren %s: %s", action, res.Error)
	}
	return res, nil
}

// Stream follows /api/events and calls fn for every status document until ctx
// is done or the server closes the stream.
func (c *Client) Stream(ctx context.Context, fn func(admin.StatusJSON)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/events", nil)
	if err != nil {
		return err
	}
	// The stream outlives the client timeout.
	hc := *c.HTTP
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events: %s", resp.Status)
	}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var st admin.StatusJSON
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			continue
		}
		fn(st)
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
