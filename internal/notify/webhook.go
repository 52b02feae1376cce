// Package notify delivers job completion notifications to external receivers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	// DefaultWebhookTimeout applies when no timeout is configured.
	DefaultWebhookTimeout = 10 * time.Second

	maxErrorBody = 512
)

// ErrEmptyWebhookURL indicates a webhook notifier built without a target.
var ErrEmptyWebhookURL = errors.New("webhook url cannot be empty")

// Webhook posts notifications as JSON to a fixed URL.
type Webhook struct {
	httpClient *http.Client
	url        string
}

// NewWebhook creates a Webhook notifier for url.
func NewWebhook(url string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, ErrEmptyWebhookURL
	}

	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}

	return &Webhook{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}, nil
}

// Notify sends one POST. Any non-2xx response is an error; the receiver's
// response body is otherwise ignored.
func (w *Webhook) Notify(ctx context.Context, notification core.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook to %s: %w", w.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return fmt.Errorf("webhook returned non-success status: %s, body: %s", resp.Status, string(detail))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
