package alarm

import (
	"testing"

	"go.uber.org/zap"
)

func TestNotifierEnabled(t *testing.T) {
	if NewNotifier("", zap.NewNop()).Enabled() {
		t.Error("empty URL must disable the notifier")
	}
	if !NewNotifier("https://hooks.example.com/alarms", zap.NewNop()).Enabled() {
		t.Error("configured URL must enable the notifier")
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"https", "https://hooks.example.com/alarms", true},
		{"http", "http://internal.example.com/hook", true},
		{"ftp scheme", "ftp://example.com/hook", false},
		{"no scheme", "hooks.example.com/alarms", false},
		{"localhost", "http://localhost:9000/hook", false},
		{"loopback ip", "http://127.0.0.1/hook", false},
		{"ipv6 loopback", "http://[::1]:8080/hook", false},
		{"cloud metadata ip", "http://169.254.169.254/latest", false},
		{"gcp metadata host", "http://metadata.google.internal/computeMetadata", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWebhookURL(tt.url)
			if (err == nil) != tt.ok {
				t.Errorf("validateWebhookURL(%q) = %v, want ok=%v", tt.url, err, tt.ok)
			}
		})
	}
}
