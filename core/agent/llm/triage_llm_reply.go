package llm

import (
	"context"
	"fmt"
)

const ackReplyPrompt = `You are a customer support assistant.

STRICT RULES:
- Do NOT mention pricing, products, plans, or services
- Do NOT ask follow-up questions
- Do NOT make assumptions
- Do NOT use placeholders like [Your Name]
- Keep it short, polite, professional
- Purpose: acknowledge receipt only
- End with: Customer Support Team

Email:
Subject: %s
Body: %s
`

// GenerateAckReply implements out.ReplyOracle. Length and echo checks are
// done by the reply composer.
func (c *Client) GenerateAckReply(ctx context.Context, subject, body string) (string, error) {
	prompt := fmt.Sprintf(ackReplyPrompt, subject, truncateBody(body, maxPromptBody))
	return c.Complete(ctx, prompt)
}
