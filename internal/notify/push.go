// Package notify delivers completion pushes to the device that submitted a
// job. Delivery is best effort: callers log failures and move on, a missed
// push never fails the webhook that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
)

// Push is one notification addressed to a device token.
type Push struct {
	DeviceToken string `json:"device_token"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	TaskID      string `json:"task_id"`
	ResultURL   string `json:"result_url,omitempty"`
}

// Notifier sends a push to the delivery relay.
type Notifier interface {
	Send(ctx context.Context, p Push) error
}

// HTTPNotifier POSTs pushes to an external relay endpoint.
type HTTPNotifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPNotifier builds a notifier for the given relay endpoint.
func NewHTTPNotifier(endpoint, apiKey string, httpClient *http.Client) *HTTPNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPNotifier{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Send implements Notifier.
func (n *HTTPNotifier) Send(ctx context.Context, p Push) error {
	if p.DeviceToken == "" {
		return fmt.Errorf("push: device token is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("push: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}

// NoopNotifier discards pushes. Used when no relay is configured.
type NoopNotifier struct{}

// Send implements Notifier.
func (NoopNotifier) Send(ctx context.Context, p Push) error {
	return nil
}
