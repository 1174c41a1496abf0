package audit

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// WebhookBackend POSTs audit events to an HTTP endpoint.
type WebhookBackend struct {
	endpoint string
	client   *http.Client
}

func NewWebhookBackend(endpoint string) *WebhookBackend {
	return &WebhookBackend{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (w *WebhookBackend) Name() string {
	return "webhook"
}

func (w *WebhookBackend) Publish(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookBackend) Close() error {
	return nil
}
