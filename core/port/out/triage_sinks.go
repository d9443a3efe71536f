package out

import (
	"context"

	"mailtriage/core/domain"
)

// AlertNotifier tells a human about high-priority mail.
type AlertNotifier interface {
	NotifyHighPriority(ctx context.Context, d *domain.Decision) error
}

// DecisionLog is the append-only record of processed messages.
type DecisionLog interface {
	Append(ctx context.Context, records []domain.LogRecord) error
	Close() error
}
