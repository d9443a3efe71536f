package classification

import (
	"fmt"
	"regexp"
	"strings"

	"mailtriage/core/domain"
)

// =============================================================================
// Keyword Rule Classifier (Stage 2)
// =============================================================================

type compiledRule struct {
	re       *regexp.Regexp
	category domain.Category
}

// RuleClassifier assigns a provisional category from ordered keyword rules.
// The first matching rule wins; no match gives General.
type RuleClassifier struct {
	rules []compiledRule
}

// NewRuleClassifier compiles rules in order. Unknown categories are rejected.
func NewRuleClassifier(rules []domain.PatternRule) (*RuleClassifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		category, ok := domain.ParseCategory(string(r.Category))
		if !ok {
			return nil, fmt.Errorf("rule %q: unknown category %q", r.Pattern, r.Category)
		}
		re, err := regexp.Compile(unicodeWordBounds(r.Pattern))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{re: re, category: category})
	}
	return &RuleClassifier{rules: compiled}, nil
}

const (
	leadingBound  = `(?:^|[^\p{L}\p{N}_])`
	trailingBound = `(?:$|[^\p{L}\p{N}_])`
)

// unicodeWordBounds rewrites a leading or trailing \b so letters outside
// ASCII count as word characters; RE2's \b only knows [0-9A-Za-z_].
// Boundaries inside the pattern are left as they are.
func unicodeWordBounds(pattern string) string {
	if strings.HasPrefix(pattern, `\b`) {
		pattern = leadingBound + pattern[2:]
	}
	if strings.HasSuffix(pattern, `\b`) && escapedB(pattern) {
		pattern = pattern[:len(pattern)-2] + trailingBound
	}
	return pattern
}

// escapedB reports whether the final "\b" is a boundary and not a literal
// backslash followed by b.
func escapedB(pattern string) bool {
	n := 0
	for i := len(pattern) - 2; i >= 0 && pattern[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func (c *RuleClassifier) Name() string { return "rule" }
func (c *RuleClassifier) Stage() int   { return StageRule }

// Classify matches the case-folded "subject body" text.
func (c *RuleClassifier) Classify(subject, body string) domain.Category {
	text := combinedText(subject, body)
	for _, r := range c.rules {
		if r.re.MatchString(text) {
			return r.category
		}
	}
	return domain.CategoryGeneral
}
