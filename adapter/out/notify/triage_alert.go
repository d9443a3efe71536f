// Package notify delivers high-priority alerts to the mailbox owner.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// AlertText renders the owner alert as Teams-flavoured markdown. Two trailing
// spaces force a line break in Teams cards.
func AlertText(d *domain.Decision) string {
	var b strings.Builder
	b.WriteString("🚨 **High Priority Email Alert**  \n")
	fmt.Fprintf(&b, "**From:** %s  \n", d.Message.From)
	fmt.Fprintf(&b, "**Subject:** %s  \n", d.Message.Subject)
	fmt.Fprintf(&b, "**Category:** %s  \n", d.Category())
	fmt.Fprintf(&b, "**Sentiment:** %s  \n", d.Sentiment())
	fmt.Fprintf(&b, "**Priority:** %s  \n\n", d.Priority())
	b.WriteString("**Action Required by Owner**")
	return b.String()
}

// Multi fans an alert out to every notifier. All notifiers are tried; the
// joined error reports the ones that failed.
type Multi []out.AlertNotifier

func (m Multi) NotifyHighPriority(ctx context.Context, d *domain.Decision) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyHighPriority(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ out.AlertNotifier = Multi(nil)
