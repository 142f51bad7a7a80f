package alarm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notifier posts alarm lifecycle events to a configured webhook.
type Notifier struct {
	webhook string
	client  *http.Client
	log     *zap.Logger
}

// NewNotifier creates a webhook notifier; an empty URL disables it.
func NewNotifier(webhook string, log *zap.Logger) *Notifier {
	return &Notifier{
		webhook: webhook,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

// Enabled reports whether a destination is configured.
func (n *Notifier) Enabled() bool {
	return n.webhook != ""
}

// Notify sends an event asynchronously; delivery failures are logged,
// never surfaced to the evaluation path.
func (n *Notifier) Notify(event string, payload interface{}) {
	if !n.Enabled() {
		return
	}
	go n.post(event, payload)
}

// validateWebhookURL checks that the webhook uses http/https and does
// not target localhost, link-local, or cloud metadata endpoints.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	blocked := []string{"169.254.169.254", "metadata.google.internal", "localhost", "127.0.0.1", "::1", "[::1]"}
	for _, b := range blocked {
		if host == b {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	return nil
}

func (n *Notifier) post(event string, payload interface{}) {
	if err := validateWebhookURL(n.webhook); err != nil {
		n.log.Warn("webhook blocked", zap.Error(err))
		return
	}
	body := map[string]interface{}{
		"event":   event,
		"payload": payload,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		n.log.Warn("webhook marshal failed", zap.Error(err))
		return
	}
	req, err := http.NewRequest(http.MethodPost, n.webhook, bytes.NewReader(data))
	if err != nil {
		n.log.Warn("webhook request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("webhook delivery failed", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
