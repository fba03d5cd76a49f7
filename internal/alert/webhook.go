package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookTransport POSTs events as JSON to a fixed endpoint.
type WebhookTransport struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// NewWebhookTransport builds a transport for endpoint. A nil client gets
// a default with the send timeout.
func NewWebhookTransport(endpoint string, client *http.Client) *WebhookTransport {
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	return &WebhookTransport{endpoint: endpoint, client: client, now: time.Now}
}

var _ Transport = (*WebhookTransport)(nil)

type webhookBody struct {
	Event   string    `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Send delivers one event. Non-2xx responses are errors.
func (w *WebhookTransport) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookBody{Event: ev.Type, At: w.now().UTC(), Payload: ev.Payload})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert endpoint returned %d", resp.StatusCode)
	}
	return nil
}
