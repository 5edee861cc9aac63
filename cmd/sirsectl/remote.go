package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/api/respond"
	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/lifecycle"
	"github.com/cerberusteck/sirse-watch/internal/report"
)

// watcherClient drives a running watcher through its control API so that
// state changes go through the daemon's controller instead of racing it on
// the shared state store.
type watcherClient struct {
	baseURL    string
	httpClient *http.Client
}

// controlError is a non-2xx reply from the control API.
type controlError struct {
	Status  int
	Code    string
	Message string
	Detail  string
}

func (e *controlError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("watcher returned %d %s: %s (%s)", e.Status, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("watcher returned %d %s: %s", e.Status, e.Code, e.Message)
}

type checkReply struct {
	NewReports []report.Report `json:"new_reports"`
	SeenCount  int             `json:"seen_count"`
}

// dialWatcher returns a client when a watcher answers GET /health at baseURL,
// or nil when none is reachable.
func dialWatcher(ctx context.Context, baseURL string, checkTimeout time.Duration) *watcherClient {
	if baseURL == "" {
		return nil
	}
	c := &watcherClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: checkTimeout + 10*time.Second},
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.do(pingCtx, http.MethodGet, "/health", nil, nil); err != nil {
		logger.Debug("Watcher not reachable, using the state store directly", "url", baseURL, "error", err)
		return nil
	}
	return c
}

func (c *watcherClient) status(ctx context.Context) (lifecycle.Status, error) {
	var st lifecycle.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/polling", nil, &st)
	return st, err
}

func (c *watcherClient) setLocation(ctx context.Context, p geo.Point) (lifecycle.Status, error) {
	var st lifecycle.Status
	err := c.do(ctx, http.MethodPut, "/api/v1/location", map[string]float64{
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
	}, &st)
	return st, err
}

func (c *watcherClient) check(ctx context.Context) (checkReply, error) {
	var res checkReply
	err := c.do(ctx, http.MethodPost, "/api/v1/polling/check", nil, &res)
	return res, err
}

func (c *watcherClient) reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/polling/reset", nil, nil)
}

func (c *watcherClient) setEnabled(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPut, "/api/v1/polling/enabled", map[string]bool{"enabled": enabled}, nil)
}

func (c *watcherClient) setInterval(ctx context.Context, minutes int) error {
	return c.do(ctx, http.MethodPut, "/api/v1/polling/interval", map[string]int{"minutes": minutes}, nil)
}

func (c *watcherClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e respond.ErrorResponse
		cerr := &controlError{Status: resp.StatusCode}
		if json.Unmarshal(raw, &e) == nil && e.Error.Code != "" {
			cerr.Code, cerr.Message, cerr.Detail = e.Error.Code, e.Error.Message, e.Error.Detail
		} else {
			cerr.Message = http.StatusText(resp.StatusCode)
		}
		return cerr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func isCheckTimeout(err error) bool {
	var cerr *controlError
	return errors.As(err, &cerr) && cerr.Code == "CHECK_TIMEOUT"
}
