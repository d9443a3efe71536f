package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"

	"github.com/goccy/go-json"
)

// ErrMalformedResponse is returned for answers that are not the requested
// JSON object.
var ErrMalformedResponse = errors.New("malformed classification response")

const classifyPrompt = `You are an email classifier.

Classify the email into ONE category:
- Inquiry
- Complaint
- Feedback
- Opt-out
- General
- System

Also determine:
- priority: High / Medium / Low
- sentiment: Positive / Neutral / Negative

Return ONLY valid JSON with the keys "category", "priority" and "sentiment".

Email:
Subject: %s
Body: %s
`

// maxPromptBody bounds the body sent to the model.
const maxPromptBody = 4000

// ClassifyEmail implements out.ClassificationOracle.
func (c *Client) ClassifyEmail(ctx context.Context, subject, body string) (*out.OracleClassification, error) {
	prompt := fmt.Sprintf(classifyPrompt, subject, truncateBody(body, maxPromptBody))

	resp, err := c.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseClassification(resp)
}

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseClassification validates a model answer: a JSON object whose
// category, priority and sentiment are all present and known.
func ParseClassification(resp string) (*out.OracleClassification, error) {
	resp = strings.TrimSpace(resp)
	if m := fenceRe.FindStringSubmatch(resp); m != nil {
		resp = m[1]
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(resp), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	get := func(key string) (string, error) {
		v, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %q is not a string", ErrMalformedResponse, key)
		}
		return s, nil
	}

	var result out.OracleClassification
	var err error
	if result.Category, err = get("category"); err != nil {
		return nil, err
	}
	if result.Priority, err = get("priority"); err != nil {
		return nil, err
	}
	if result.Sentiment, err = get("sentiment"); err != nil {
		return nil, err
	}

	if _, ok := domain.ParseCategory(result.Category); !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrMalformedResponse, result.Category)
	}
	if _, ok := domain.ParsePriority(result.Priority); !ok {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrMalformedResponse, result.Priority)
	}
	if _, ok := domain.ParseSentiment(result.Sentiment); !ok {
		return nil, fmt.Errorf("%w: unknown sentiment %q", ErrMalformedResponse, result.Sentiment)
	}
	return &result, nil
}

func truncateBody(body string, maxLen int) string {
	r := []rune(body)
	if len(r) <= maxLen {
		return body
	}
	return string(r[:maxLen]) + "..."
}
