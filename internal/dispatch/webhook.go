package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/handoff"
)

// WebhookRow is the JSON body POSTed to the spreadsheet webhook. Meeting
// fields are flattened for easy column mapping.
type WebhookRow struct {
	TS          time.Time      `json:"ts"`
	BrandKey    string         `json:"brandKey"`
	Kind        string         `json:"kind"`
	ThreadID    string         `json:"threadId"`
	VisitorID   *string        `json:"visitorId"`
	SessionID   *string        `json:"sessionId"`
	Source      map[string]any `json:"source"`
	Meta        map[string]any `json:"meta"`
	Payload     handoff.Record `json:"payload"`
	MeetingMode string         `json:"meeting_mode"`
	MeetingDate string         `json:"meeting_date"`
	MeetingTime string         `json:"meeting_time"`
}

// NewWebhookRow flattens a submission.
func NewWebhookRow(s Submission) WebhookRow {
	return WebhookRow{
		TS:          s.At.UTC(),
		BrandKey:    s.Brand.Key,
		Kind:        s.Kind,
		ThreadID:    s.ConversationID,
		VisitorID:   optional(s.VisitorID),
		SessionID:   optional(s.SessionID),
		Source:      s.Source,
		Meta:        s.Meta,
		Payload:     s.Record,
		MeetingMode: s.Record.Meeting.Mode,
		MeetingDate: s.Record.Meeting.Date,
		MeetingTime: s.Record.Meeting.Time,
	}
}

// WebhookChannel delivers handoff rows to a configured webhook URL.
type WebhookChannel struct {
	config  config.WebhookSettings
	client  *http.Client
	backoff time.Duration
}

// NewWebhookChannel creates the channel. A nil client uses http.DefaultClient.
func NewWebhookChannel(cfg config.WebhookSettings, client *http.Client) *WebhookChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookChannel{config: cfg, client: client, backoff: 500 * time.Millisecond}
}

// Enabled returns true if a webhook URL is configured.
func (w *WebhookChannel) Enabled() bool {
	return strings.TrimSpace(w.config.URL) != ""
}

func (w *WebhookChannel) Name() string { return "webhook" }

// Send posts the row, retrying once on a transport error or 5xx.
func (w *WebhookChannel) Send(ctx context.Context, s Submission) error {
	if !w.Enabled() {
		return nil
	}

	data, err := json.Marshal(NewWebhookRow(s))
	if err != nil {
		return fmt.Errorf("marshaling webhook row: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
				return fmt.Errorf("webhook retry: %w (last: %v)", ctx.Err(), lastErr)
			}
		}

		retry, err := w.post(ctx, data)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (w *WebhookChannel) post(ctx context.Context, data []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Intake")
	if secret := strings.TrimSpace(w.config.Secret); secret != "" {
		req.Header.Set("x-webhook-secret", secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook delivery failed: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	return resp.StatusCode >= 500, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
