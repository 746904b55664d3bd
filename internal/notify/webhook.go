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

const webhookTimeout = 5 * time.Second

// WebhookNotifier POSTs each notification as JSON to a fixed URL.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier returns a notifier posting to url. A nil client gets a
// client with a 5s timeout.
func NewWebhookNotifier(url string, httpClient *http.Client) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookNotifier{url: url, httpClient: httpClient}
}

type webhookPayload struct {
	Event string `json:"event"`
	Notification
	Text string `json:"text"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		Event:        "request.escalated",
		Notification: n,
		Text:         fmt.Sprintf("Hey, I need help answering: %q (request id: %s)", n.Question, n.RequestID),
	})
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
