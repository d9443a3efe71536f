// Package classification implements the staged category classification of
// support mail: system filter, keyword rules, then the model.
package classification

import (
	"fmt"
	"regexp"
	"strings"
)

// Stage numbers, in pipeline order.
const (
	StageSystem = 1
	StageRule   = 2
	StageModel  = 3
)

// =============================================================================
// System Message Filter (Stage 1)
// =============================================================================

// SystemFilter detects automated mail (verification codes, security alerts,
// no-reply senders). A match stops all further processing of the message.
type SystemFilter struct {
	patterns []*regexp.Regexp
}

// NewSystemFilter compiles the ordered pattern list.
func NewSystemFilter(patterns []string) (*SystemFilter, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("system pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &SystemFilter{patterns: compiled}, nil
}

func (f *SystemFilter) Name() string { return "system" }
func (f *SystemFilter) Stage() int   { return StageSystem }

// IsSystem reports whether the case-folded "subject body" text matches any
// pattern.
func (f *SystemFilter) IsSystem(subject, body string) bool {
	text := combinedText(subject, body)
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// MatchedPattern returns the first matching pattern, for logging.
func (f *SystemFilter) MatchedPattern(subject, body string) (string, bool) {
	text := combinedText(subject, body)
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

func combinedText(subject, body string) string {
	return strings.ToLower(subject + " " + body)
}
