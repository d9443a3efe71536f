// Package triage runs the per-message decision pipeline and the mailbox run
// built around it.
package triage

import (
	"context"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/core/service/classification"
	"mailtriage/core/service/email"
	"mailtriage/core/service/reply"
	"mailtriage/pkg/logger"
)

// NewDecision assembles the final record. Owner action is Not Required
// exactly for System mail, and System or Opt-out mail never carries a reply.
func NewDecision(msg domain.Message, result domain.ClassificationResult, autoReply string) domain.Decision {
	action := domain.OwnerActionRequired
	if result.Category == domain.CategorySystem {
		action = domain.OwnerActionNotRequired
	}
	if result.Category == domain.CategorySystem || result.Category == domain.CategoryOptOut {
		autoReply = ""
	}
	return domain.Decision{
		Message:        msg,
		Classification: result,
		OwnerAction:    action,
		AutoReply:      autoReply,
	}
}

// Pipeline turns one mailbox message into a Decision. All of its fields are
// read-only after construction, so one Pipeline can serve concurrent callers.
type Pipeline struct {
	system   *classification.SystemFilter
	rules    *classification.RuleClassifier
	model    *classification.ModelClassifier
	composer *reply.Composer
}

func NewPipeline(
	system *classification.SystemFilter,
	rules *classification.RuleClassifier,
	model *classification.ModelClassifier,
	composer *reply.Composer,
) *Pipeline {
	return &Pipeline{
		system:   system,
		rules:    rules,
		model:    model,
		composer: composer,
	}
}

// Process always returns a complete Decision. Oracle failures degrade to the
// rule category with Low priority and Neutral sentiment.
func (p *Pipeline) Process(ctx context.Context, m *out.MailMessage) domain.Decision {
	msg := email.NewMessage(m)
	log := logger.WithContext(ctx).WithField("message_id", msg.ID)

	if pattern, ok := p.system.MatchedPattern(msg.Subject, msg.Body); ok {
		log.WithField("pattern", pattern).Debug("system message, skipping classification")
		return NewDecision(msg, domain.SystemClassification(), "")
	}

	ruleCategory := p.rules.Classify(msg.Subject, msg.Body)

	result, ok := p.model.Classify(ctx, msg.Subject, msg.Body)
	if !ok {
		result = domain.FallbackClassification(ruleCategory)
	}

	autoReply := p.composer.Compose(ctx, result.Category, msg.Subject, msg.Body, msg.From)

	d := NewDecision(msg, result, autoReply)
	log.WithFields(map[string]any{
		"rule_category": string(ruleCategory),
		"category":      string(d.Category()),
		"priority":      string(d.Priority()),
		"sentiment":     string(d.Sentiment()),
		"source":        string(result.Source),
		"has_reply":     d.HasReply(),
	}).Info("message classified")
	return d
}
