package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RunSummary describes the outcome of one index update.
type RunSummary struct {
	Profile     string
	Added       string
	Deleted     []string
	AlreadyGone []string
	Retained    int
	Retain      int
}

// Changed reports whether the run added or purged anything.
func (s RunSummary) Changed() bool {
	return s.Added != "" || len(s.Deleted) > 0 || len(s.AlreadyGone) > 0
}

// SlackClient handles Slack notifications.
type SlackClient struct {
	WebhookURL string
	Channel    string // Optional: Override default channel
	client     *http.Client
}

// NewSlackClient initializes the Slack integration.
func NewSlackClient(webhookURL string, channel string) *SlackClient {
	return &SlackClient{
		WebhookURL: webhookURL,
		Channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SendRunSummary posts a summary of the run. Runs that changed nothing
// are not reported.
func (s *SlackClient) SendRunSummary(ctx context.Context, summary RunSummary) error {
	if s.WebhookURL == "" || !summary.Changed() {
		return nil
	}

	jsonPayload, err := json.Marshal(s.constructPayload(summary))
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status from slack: %d", resp.StatusCode)
	}
	return nil
}

// constructPayload builds the message blocks.
func (s *SlackClient) constructPayload(summary RunSummary) map[string]interface{} {
	added := "_none_"
	if summary.Added != "" {
		added = "`" + summary.Added + "`"
	}

	blocks := []map[string]interface{}{
		// Header
		{
			"type": "header",
			"text": map[string]interface{}{
				"type": "plain_text",
				"text": fmt.Sprintf("Build index updated: %s", summary.Profile),
			},
		},
		// Section: Quick Stats
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*New build:*\n%s", added),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Retained:*\n%d of %d", summary.Retained, summary.Retain),
				},
			},
		},
	}

	if len(summary.Deleted) > 0 || len(summary.AlreadyGone) > 0 {
		var lines []string
		for _, id := range summary.Deleted {
			lines = append(lines, fmt.Sprintf("• `%s` deleted", id))
		}
		for _, id := range summary.AlreadyGone {
			lines = append(lines, fmt.Sprintf("• `%s` already gone", id))
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": "*Purged releases:*\n" + strings.Join(lines, "\n"),
			},
		})
	}

	payload := map[string]interface{}{
		"blocks": blocks,
	}

	if s.Channel != "" {
		payload["channel"] = s.Channel
	}

	return payload
}
