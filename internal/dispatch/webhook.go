package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/config"
)

// Webhook posts alerts as JSON to a configured URL, formatted for slack,
// teams, or a generic HTTP consumer.
type Webhook struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhook builds one webhook sender. The URL is resolved from the
// environment per send so rotation does not require a restart.
func NewWebhook(cfg config.WebhookConfig) *Webhook {
	return &Webhook{cfg: cfg, client: &http.Client{}}
}

func (w *Webhook) Name() string { return "webhook_" + w.cfg.Type }

// Send posts the alert payload for this target's type.
func (w *Webhook) Send(ctx context.Context, a alert.Alert) error {
	url := w.cfg.URL()
	if url == "" {
		return fmt.Errorf("webhook %s: url env %q is empty", w.cfg.Type, w.cfg.URLEnv)
	}

	var body []byte
	switch w.cfg.Type {
	case "slack":
		body, _ = json.Marshal(map[string]string{
			"text": fmt.Sprintf("*%s* %s", severityLabel(a), a.Message),
		})
	case "teams":
		body, _ = json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a),
			"summary":    string(a.Kind),
			"title":      fmt.Sprintf("ServerPulse Alert: %s", a.Kind),
			"text":       a.Message,
		})
	default:
		body, _ = json.Marshal(map[string]interface{}{"alert": a})
	}

	return w.post(ctx, url, body)
}

func (w *Webhook) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(a alert.Alert) string {
	if a.Resolved {
		return "[RESOLVED]"
	}
	switch a.Severity {
	case alert.SeverityCritical:
		return "[CRITICAL]"
	case alert.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(a alert.Alert) string {
	if a.Resolved {
		return "2EB67D"
	}
	switch a.Severity {
	case alert.SeverityCritical:
		return "FF4F6A"
	case alert.SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
