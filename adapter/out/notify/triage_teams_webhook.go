package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/httputil"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/resilience"

	"github.com/goccy/go-json"
)

const defaultWebhookTimeout = 10 * time.Second

// TeamsNotifier posts alerts to a Microsoft Teams incoming webhook.
type TeamsNotifier struct {
	url    string
	client *http.Client
	cb     *resilience.Breaker
}

func NewTeamsNotifier(webhookURL string, timeout time.Duration) *TeamsNotifier {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &TeamsNotifier{
		url:    webhookURL,
		client: httputil.NewOptimizedClient(httputil.WebhookClientConfig(timeout)),
		cb:     resilience.NewBreaker(resilience.DefaultBreakerConfig("teams-webhook")),
	}
}

type teamsMessage struct {
	Text string `json:"text"`
}

func (n *TeamsNotifier) NotifyHighPriority(ctx context.Context, d *domain.Decision) error {
	data, err := json.Marshal(teamsMessage{Text: AlertText(d)})
	if err != nil {
		return err
	}

	err = resilience.Do(ctx, n.cb, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return n.doRequest(req)
	})
	if err != nil {
		return fmt.Errorf("teams alert: %w", err)
	}

	logger.WithField("message_id", d.Message.ID).Info("[Teams] alert sent for: %s", d.Message.Subject)
	return nil
}

func (n *TeamsNotifier) doRequest(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resilience.Permanent(err)
		}
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ out.AlertNotifier = (*TeamsNotifier)(nil)
