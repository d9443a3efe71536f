package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"mailtriage/core/domain"
	"mailtriage/pkg/apperr"

	"gopkg.in/yaml.v3"
)

// rulesFile is the YAML shape of RULES_FILE. Empty sections keep the
// built-in tables.
//
//	system_patterns: ["no-reply", "newsletter"]
//	category_rules:
//	  - pattern: '\b(invoice|billing)\b'
//	    category: Inquiry
//	reply_templates:
//	  Complaint: "Hi {name}, ..."
//	min_reply_length: 60
type rulesFile struct {
	SystemPatterns []string             `yaml:"system_patterns"`
	CategoryRules  []domain.PatternRule `yaml:"category_rules"`
	ReplyTemplates map[string]string    `yaml:"reply_templates"`
	MinReplyLength *int                 `yaml:"min_reply_length"`
}

// Rules are the effective classification tables for a run.
type Rules struct {
	SystemPatterns []string
	CategoryRules  []domain.PatternRule
	Templates      domain.ReplyTemplates
	MinReplyLength int
}

// DefaultRules returns the built-in tables.
func DefaultRules(minReplyLength int) *Rules {
	return &Rules{
		SystemPatterns: append([]string(nil), domain.DefaultSystemPatterns...),
		CategoryRules:  append([]domain.PatternRule(nil), domain.DefaultCategoryRules...),
		Templates:      domain.DefaultReplyTemplates(),
		MinReplyLength: minReplyLength,
	}
}

// LoadRules returns the built-in tables with the file at path applied on
// top. An empty path yields the defaults.
func LoadRules(path string, minReplyLength int) (*Rules, error) {
	rules := DefaultRules(minReplyLength)
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ConfigError("RULES_FILE", err.Error())
	}

	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperr.ConfigError("RULES_FILE", fmt.Sprintf("%s: %v", path, err))
	}

	if len(f.SystemPatterns) > 0 {
		rules.SystemPatterns = f.SystemPatterns
	}

	if len(f.CategoryRules) > 0 {
		parsed := make([]domain.PatternRule, 0, len(f.CategoryRules))
		for i, r := range f.CategoryRules {
			cat, ok := domain.ParseCategory(string(r.Category))
			if !ok {
				return nil, apperr.ConfigError("RULES_FILE", fmt.Sprintf("category_rules[%d]: unknown category %q", i, r.Category))
			}
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return nil, apperr.ConfigError("RULES_FILE", fmt.Sprintf("category_rules[%d]: %v", i, err))
			}
			parsed = append(parsed, domain.PatternRule{Pattern: r.Pattern, Category: cat})
		}
		rules.CategoryRules = parsed
	}

	if len(f.ReplyTemplates) > 0 {
		override := make(domain.ReplyTemplates, len(f.ReplyTemplates))
		for k, v := range f.ReplyTemplates {
			cat, ok := domain.ParseCategory(k)
			if !ok || cat == domain.CategorySystem {
				return nil, apperr.ConfigError("RULES_FILE", fmt.Sprintf("reply_templates: unknown category %q", k))
			}
			override[cat] = v
		}
		rules.Templates = rules.Templates.Merge(override)
	}

	if f.MinReplyLength != nil {
		if *f.MinReplyLength < 0 {
			return nil, apperr.ConfigError("RULES_FILE", "min_reply_length must not be negative")
		}
		rules.MinReplyLength = *f.MinReplyLength
	}

	return rules, nil
}

// WithExtraSystemPatterns appends patterns not already present.
func (r *Rules) WithExtraSystemPatterns(extra []string) *Rules {
	seen := make(map[string]bool, len(r.SystemPatterns))
	for _, p := range r.SystemPatterns {
		seen[p] = true
	}
	for _, p := range extra {
		if !seen[p] {
			r.SystemPatterns = append(r.SystemPatterns, p)
			seen[p] = true
		}
	}
	return r
}
