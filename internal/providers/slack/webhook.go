package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookProvider posts messages to a Slack incoming webhook. The channel is
// fixed by the webhook unless channelID overrides it.
type WebhookProvider struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookProvider{url: url, client: client}
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	body, err := json.Marshal(webhookPayload{Channel: channelID, Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
