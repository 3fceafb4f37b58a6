package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts alerts to a generic HTTP endpoint as structured
// JSON, so downstream consumers get the raw rule result rather than a
// pre-rendered string.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the wire form of one delivered event.
type webhookPayload struct {
	Level    string             `json:"level"`
	RuleID   string             `json:"rule_id"`
	RuleName string             `json:"rule_name"`
	Symbol   string             `json:"symbol"`
	Exchange string             `json:"exchange"`
	BarTime  time.Time          `json:"bar_time"`
	Snapshot map[string]float64 `json:"snapshot,omitempty"`
	SentAt   time.Time          `json:"sent_at"`
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST alerts to.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookPayload{
		Level:    string(ev.Level),
		RuleID:   ev.Result.RuleID,
		RuleName: ev.RuleName,
		Symbol:   ev.Result.Symbol,
		Exchange: ev.Result.Exchange,
		BarTime:  ev.Result.BarTime,
		Snapshot: ev.Result.Snapshot,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookNotifier) Channel() string { return "webhook" }
