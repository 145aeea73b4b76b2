package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/steamstats/steamstats/collector/internal/config"
	"github.com/steamstats/steamstats/collector/internal/merge"
)

const sendTimeout = 10 * time.Second

// Failure is one failed feed of a collector run.
type Failure struct {
	Feed string
	Err  error
	At   time.Time
}

// Message is the human-readable one-line description of f.
func (f Failure) Message() string {
	var gap *merge.GapError
	if errors.As(f.Err, &gap) {
		return fmt.Sprintf("feed %q cannot be merged: %s gap after %s (interval %s); backfill required",
			f.Feed, gap.Gap(), gap.OldEnd.UTC().Format(time.DateTime), gap.Interval)
	}
	return fmt.Sprintf("feed %q failed: %v", f.Feed, f.Err)
}

// Notifier sends failures to the configured webhooks.
type Notifier struct {
	hooks  []config.WebhookConfig
	client *http.Client
}

// New returns a Notifier for hooks. A Notifier with no hooks is valid;
// Notify becomes a no-op.
func New(hooks []config.WebhookConfig) *Notifier {
	return &Notifier{
		hooks:  hooks,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Notify delivers f to every webhook with a resolvable URL.
func (n *Notifier) Notify(ctx context.Context, f Failure) {
	for _, wh := range n.hooks {
		url := wh.URL()
		if url == "" {
			slog.Debug("notify: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(ctx, url, f)
		case "teams":
			err = n.sendTeams(ctx, url, f)
		case "http":
			err = n.sendHTTP(ctx, url, f)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"feed", f.Feed,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered", "type", wh.Type, "feed", f.Feed)
		}
	}
}

func (n *Notifier) sendSlack(ctx context.Context, url string, f Failure) error {
	body, _ := json.Marshal(map[string]string{
		"text": "*[steamstats]* " + f.Message(),
	})
	return n.post(ctx, url, body)
}

func (n *Notifier) sendTeams(ctx context.Context, url string, f Failure) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "FF4F6A",
		"summary":    "steamstats feed " + f.Feed + " failed",
		"title":      fmt.Sprintf("Steam stats collector: %s", f.Feed),
		"text":       f.Message(),
	}
	body, _ := json.Marshal(payload)
	return n.post(ctx, url, body)
}

// httpPayload is the body sent to generic HTTP webhooks.
type httpPayload struct {
	Feed       string    `json:"feed"`
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
	GapSeconds float64   `json:"gap_seconds,omitempty"`
}

func (n *Notifier) sendHTTP(ctx context.Context, url string, f Failure) error {
	p := httpPayload{
		Feed:    f.Feed,
		Error:   f.Err.Error(),
		Message: f.Message(),
		At:      f.At.UTC(),
	}
	var gap *merge.GapError
	if errors.As(f.Err, &gap) {
		p.GapSeconds = gap.Gap().Seconds()
	}
	body, _ := json.Marshal(p)
	return n.post(ctx, url, body)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
