package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackAlertHandler posts alerts to a Slack incoming webhook.
type SlackAlertHandler struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
}

// NewSlackAlertHandler creates a new Slack alert handler
func NewSlackAlertHandler(webhookURL, channel string) *SlackAlertHandler {
	return &SlackAlertHandler{
		webhookURL: webhookURL,
		channel:    channel,
		username:   "neurolab-alerts",
		iconEmoji:  ":rotating_light:",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the handler
func (h *SlackAlertHandler) Name() string {
	return "slack"
}

// HandleAlert posts the alert as a Slack attachment
func (h *SlackAlertHandler) HandleAlert(ctx context.Context, alert Alert) error {
	fields := []map[string]interface{}{
		{
			"title": "Severity",
			"value": alert.Severity.String(),
			"short": true,
		},
		{
			"title": "Source",
			"value": alert.Source,
			"short": true,
		},
	}

	for key, value := range alert.Tags {
		fields = append(fields, map[string]interface{}{
			"title": key,
			"value": value,
			"short": true,
		})
	}

	payload := map[string]interface{}{
		"channel":    h.channel,
		"username":   h.username,
		"icon_emoji": h.iconEmoji,
		"attachments": []map[string]interface{}{
			{
				"color":     h.colorForSeverity(alert.Severity),
				"title":     alert.Title,
				"text":      alert.Description,
				"timestamp": alert.Timestamp.Unix(),
				"fields":    fields,
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack API returned status %d", resp.StatusCode)
	}

	return nil
}

func (h *SlackAlertHandler) colorForSeverity(severity AlertSeverity) string {
	switch severity {
	case SeverityCritical:
		return "danger"
	case SeverityError:
		return "danger"
	case SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}
