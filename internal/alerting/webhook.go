package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// WebhookChannel POSTs the alert as JSON to a fixed endpoint.
type WebhookChannel struct {
	URL    string
	client *http.Client
}

// NewWebhookChannel builds the channel with its own bounded-timeout client.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		URL:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

// Deliver posts the alert. Any non-2xx status is a delivery failure.
func (c *WebhookChannel) Deliver(alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	resp, err := c.client.Post(c.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post alert: unexpected status %s", resp.Status)
	}
	return nil
}
