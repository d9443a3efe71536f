package reply

import (
	"context"
	"strings"
	"unicode/utf8"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
)

// DefaultMinReplyLength is the shortest generated reply that is accepted.
const DefaultMinReplyLength = 40

// Composer produces the auto-reply text for a classified message.
//
//	Complaint                  -> static template, no oracle call
//	Inquiry, Feedback, General -> generated acknowledgement, validated
//	System, Opt-out            -> no reply
type Composer struct {
	oracle    out.ReplyOracle
	templates domain.ReplyTemplates
	minLength int
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithTemplates replaces the template table.
func WithTemplates(t domain.ReplyTemplates) ComposerOption {
	return func(c *Composer) { c.templates = t }
}

// WithMinLength sets the minimum accepted rune length of a generated reply.
// Zero disables the check; negative values are ignored.
func WithMinLength(n int) ComposerOption {
	return func(c *Composer) {
		if n >= 0 {
			c.minLength = n
		}
	}
}

func NewComposer(oracle out.ReplyOracle, opts ...ComposerOption) *Composer {
	c := &Composer{
		oracle:    oracle,
		templates: domain.DefaultReplyTemplates(),
		minLength: DefaultMinReplyLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose returns the reply text, or "" when no reply should be sent.
func (c *Composer) Compose(ctx context.Context, category domain.Category, subject, body, from string) string {
	log := logger.WithContext(ctx).WithField("category", string(category))

	switch category {
	case domain.CategoryComplaint:
		text, ok := c.templates.Render(category, SenderName(from))
		if !ok {
			log.Warn("no reply template for category")
			return ""
		}
		return text

	case domain.CategoryInquiry, domain.CategoryFeedback, domain.CategoryGeneral:
		return c.generate(ctx, log, subject, body)

	default:
		// System and Opt-out never get a reply from this pipeline.
		return ""
	}
}

func (c *Composer) generate(ctx context.Context, log *logger.Logger, subject, body string) string {
	if c.oracle == nil {
		return ""
	}

	text, err := c.oracle.GenerateAckReply(ctx, subject, body)
	if err != nil {
		log.WithError(err).Warn("reply oracle failed, no auto-reply")
		return ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("reply oracle returned empty text, no auto-reply")
		return ""
	}
	if utf8.RuneCountInString(text) < c.minLength {
		log.WithField("length", utf8.RuneCountInString(text)).Info("generated reply too short, discarded")
		return ""
	}
	if strings.Contains(strings.ToLower(body), strings.ToLower(text)) {
		log.Info("generated reply echoes the message body, discarded")
		return ""
	}
	return text
}
