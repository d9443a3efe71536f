package domain

import "strings"

// PatternRule maps a regular expression to the category it assigns.
// Tables are ordered; the first matching rule wins.
type PatternRule struct {
	Pattern  string   `yaml:"pattern" json:"pattern"`
	Category Category `yaml:"category" json:"category"`
}

// DefaultSystemPatterns detect automated mail. They are matched as plain
// substrings of the case-folded text, so "otp" also hits inside longer words.
var DefaultSystemPatterns = []string{
	`verification`,
	`verify your`,
	`successfully`,
	`no-reply`,
	`do not reply`,
	`login alert`,
	`security alert`,
	`password reset`,
	`otp`,
	`one time password`,
}

// DefaultCategoryRules is the keyword pass run before the model.
var DefaultCategoryRules = []PatternRule{
	{Pattern: `\b(pricing|price|cost|plan|quote)\b`, Category: CategoryInquiry},
	{Pattern: `\b(complaint|issue|problem|bad|dont like|hate|poor)\b`, Category: CategoryComplaint},
	{Pattern: `\b(unsubscribe|remove me)\b`, Category: CategoryOptOut},
}

// ReplyTemplates holds the static replies keyed by category. Each template
// contains a {name} placeholder.
type ReplyTemplates map[Category]string

const namePlaceholder = "{name}"

// DefaultReplyTemplates returns a fresh copy of the built-in templates.
func DefaultReplyTemplates() ReplyTemplates {
	return ReplyTemplates{
		CategoryInquiry:   "Hi {name},\n\nThank you for your inquiry. We will get back to you shortly.\n\nBest regards,\nTeam",
		CategoryComplaint: "Hi {name},\n\nWe are sorry to hear about your experience. Our support team will contact you immediately.\n\nBest regards,\nTeam",
		CategoryFeedback:  "Hi {name},\n\nThank you for your feedback! We appreciate your time.\n\nBest regards,\nTeam",
		CategoryOptOut:    "Hi {name},\n\nYou have been successfully unsubscribed. Sorry to see you go.\n\nBest regards,\nTeam",
		CategoryGeneral:   "Hi {name},\n\nThank you for reaching out. We will review your message and respond if necessary.\n\nBest regards,\nTeam",
	}
}

// Render substitutes name into the template for c. ok is false when no
// template exists for c.
func (t ReplyTemplates) Render(c Category, name string) (string, bool) {
	tmpl, ok := t[c]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(tmpl, namePlaceholder, name), true
}

// Merge returns a copy of t with the entries of override applied on top.
func (t ReplyTemplates) Merge(override ReplyTemplates) ReplyTemplates {
	merged := make(ReplyTemplates, len(t)+len(override))
	for k, v := range t {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
