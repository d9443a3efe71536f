package notify

import (
	"context"
	"fmt"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/resilience"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig configures e-mail alerts through SendGrid.
type SendGridConfig struct {
	APIKey   string
	FromName string
	FromAddr string
	To       string
}

// mailSender is the part of *sendgrid.Client the notifier uses.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier e-mails the owner about high-priority messages.
type SendGridNotifier struct {
	cfg    SendGridConfig
	client mailSender
	cb     *resilience.Breaker
}

func NewSendGridNotifier(cfg SendGridConfig) *SendGridNotifier {
	return &SendGridNotifier{
		cfg:    cfg,
		client: sendgrid.NewSendClient(cfg.APIKey),
		cb:     resilience.NewBreaker(resilience.DefaultBreakerConfig("sendgrid")),
	}
}

func (n *SendGridNotifier) NotifyHighPriority(ctx context.Context, d *domain.Decision) error {
	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromAddr)
	to := mail.NewEmail("", n.cfg.To)
	subject := fmt.Sprintf("[High Priority] %s", d.Message.Subject)
	message := mail.NewSingleEmail(from, subject, to, AlertText(d), "")

	resp, err := resilience.Execute(ctx, n.cb, func(ctx context.Context) (*rest.Response, error) {
		resp, err := n.client.SendWithContext(ctx, message)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == 429 {
			return nil, fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("sendgrid alert: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid alert: status %d: %s", resp.StatusCode, resp.Body)
	}

	logger.WithFields(map[string]any{
		"message_id":  d.Message.ID,
		"status_code": resp.StatusCode,
	}).Info("[SendGrid] alert sent to %s", n.cfg.To)
	return nil
}

var _ out.AlertNotifier = (*SendGridNotifier)(nil)
