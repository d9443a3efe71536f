package classification

import (
	"context"
	"errors"
	"fmt"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
)

// =============================================================================
// Model-Assisted Classifier (Stage 3)
// =============================================================================

// ErrInvalidLabel is returned when the oracle answers with a value outside
// the known categories, priorities or sentiments.
var ErrInvalidLabel = errors.New("oracle returned unknown label")

// ModelClassifier asks the classification oracle once. Any failure yields
// no result; it never retries.
type ModelClassifier struct {
	oracle out.ClassificationOracle
}

func NewModelClassifier(oracle out.ClassificationOracle) *ModelClassifier {
	return &ModelClassifier{oracle: oracle}
}

func (c *ModelClassifier) Name() string { return "llm" }
func (c *ModelClassifier) Stage() int   { return StageModel }

// Classify returns the oracle labels and true, or false when the oracle is
// unavailable or its answer is unusable.
func (c *ModelClassifier) Classify(ctx context.Context, subject, body string) (domain.ClassificationResult, bool) {
	if c.oracle == nil {
		return domain.ClassificationResult{}, false
	}

	raw, err := c.oracle.ClassifyEmail(ctx, subject, body)
	if err == nil {
		var result domain.ClassificationResult
		result, err = toResult(raw)
		if err == nil {
			return result, true
		}
	}

	logger.WithContext(ctx).
		WithField("stage", c.Name()).
		WithError(err).
		Warn("classification oracle gave no result, using fallback")
	return domain.ClassificationResult{}, false
}

func toResult(raw *out.OracleClassification) (domain.ClassificationResult, error) {
	if raw == nil {
		return domain.ClassificationResult{}, fmt.Errorf("%w: empty response", ErrInvalidLabel)
	}
	category, ok := domain.ParseCategory(raw.Category)
	if !ok {
		return domain.ClassificationResult{}, fmt.Errorf("%w: category %q", ErrInvalidLabel, raw.Category)
	}
	priority, ok := domain.ParsePriority(raw.Priority)
	if !ok {
		return domain.ClassificationResult{}, fmt.Errorf("%w: priority %q", ErrInvalidLabel, raw.Priority)
	}
	sentiment, ok := domain.ParseSentiment(raw.Sentiment)
	if !ok {
		return domain.ClassificationResult{}, fmt.Errorf("%w: sentiment %q", ErrInvalidLabel, raw.Sentiment)
	}
	return domain.ClassificationResult{
		Category:  category,
		Priority:  priority,
		Sentiment: sentiment,
		Source:    domain.SourceLLM,
	}, nil
}
