package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink POSTs each notification as JSON to a fixed URL.
type WebhookSink struct {
	httpClient *http.Client
	url        string
}

// NewWebhookSink returns nil when url is empty (webhook disabled).
func NewWebhookSink(url string) *WebhookSink {
	if url == "" {
		return nil
	}
	return &WebhookSink{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
	}
}

func (s *WebhookSink) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// RequestPermission pings the webhook. 401 and 403 mean the endpoint
// refuses us; any other answer grants permission.
func (s *WebhookSink) RequestPermission(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("create permission request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhook permission check: %w", err)
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return true, nil
	}
}
