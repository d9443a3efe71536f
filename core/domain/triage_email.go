package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the lead category assigned to a support email.
type Category string

const (
	CategoryInquiry   Category = "Inquiry"
	CategoryComplaint Category = "Complaint"
	CategoryFeedback  Category = "Feedback"
	CategoryOptOut    Category = "Opt-out"
	CategoryGeneral   Category = "General"
	CategorySystem    Category = "System" // automated / no-reply mail
)

// AllCategories lists every category, System last.
var AllCategories = []Category{
	CategoryInquiry,
	CategoryComplaint,
	CategoryFeedback,
	CategoryOptOut,
	CategoryGeneral,
	CategorySystem,
}

// ParseCategory accepts any casing and the common opt-out spellings.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inquiry":
		return CategoryInquiry, true
	case "complaint":
		return CategoryComplaint, true
	case "feedback":
		return CategoryFeedback, true
	case "opt-out", "optout", "opt out", "opt_out":
		return CategoryOptOut, true
	case "general":
		return CategoryGeneral, true
	case "system":
		return CategorySystem, true
	}
	return "", false
}

// Priority of the email for the owner.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, true
	case "medium":
		return PriorityMedium, true
	case "low":
		return PriorityLow, true
	}
	return "", false
}

// Sentiment of the sender.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

func ParseSentiment(s string) (Sentiment, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive, true
	case "neutral":
		return SentimentNeutral, true
	case "negative":
		return SentimentNegative, true
	}
	return "", false
}

// OwnerAction tells the mailbox owner whether a human has to look at the email.
type OwnerAction string

const (
	OwnerActionRequired    OwnerAction = "Required"
	OwnerActionNotRequired OwnerAction = "Not Required"
)

// ClassificationSource records which stage produced the final labels.
type ClassificationSource string

const (
	SourceSystem ClassificationSource = "system"
	SourceRule   ClassificationSource = "rule"
	SourceLLM    ClassificationSource = "llm"
)

// Message is an inbound email after normalization. It is built once by the
// normalizer and treated as read-only afterwards.
type Message struct {
	ID                string `json:"id" bson:"message_id"`
	ThreadID          string `json:"thread_id" bson:"thread_id"`
	InternetMessageID string `json:"internet_message_id,omitempty" bson:"internet_message_id,omitempty"`
	From              string `json:"from" bson:"from"`
	Subject           string `json:"subject" bson:"subject"`
	Date              string `json:"date" bson:"date"`
	RawBody           string `json:"raw_body" bson:"raw_body"`
	Body              string `json:"body" bson:"body"`
}

// ClassificationResult always carries all three labels.
type ClassificationResult struct {
	Category  Category             `json:"category" bson:"category"`
	Priority  Priority             `json:"priority" bson:"priority"`
	Sentiment Sentiment            `json:"sentiment" bson:"sentiment"`
	Source    ClassificationSource `json:"source" bson:"source"`
}

// SystemClassification is the fixed result for automated mail.
func SystemClassification() ClassificationResult {
	return ClassificationResult{
		Category:  CategorySystem,
		Priority:  PriorityLow,
		Sentiment: SentimentNeutral,
		Source:    SourceSystem,
	}
}

// FallbackClassification keeps the rule category when the model gives no result.
func FallbackClassification(ruleCategory Category) ClassificationResult {
	return ClassificationResult{
		Category:  ruleCategory,
		Priority:  PriorityLow,
		Sentiment: SentimentNeutral,
		Source:    SourceRule,
	}
}

// Decision is the final per-message record. Values are copied in, so a
// Decision handed to a sink cannot change underneath it.
type Decision struct {
	Message        Message              `json:"message" bson:"message"`
	Classification ClassificationResult `json:"classification" bson:"classification"`
	OwnerAction    OwnerAction          `json:"owner_action" bson:"owner_action"`
	AutoReply      string               `json:"auto_reply" bson:"auto_reply"`
}

func (d *Decision) Category() Category   { return d.Classification.Category }
func (d *Decision) Priority() Priority   { return d.Classification.Priority }
func (d *Decision) Sentiment() Sentiment { return d.Classification.Sentiment }

// HasReply reports whether an auto-reply should be sent.
func (d *Decision) HasReply() bool { return d.AutoReply != "" }

// IsHighPriority reports whether the owner must be alerted.
func (d *Decision) IsHighPriority() bool { return d.Classification.Priority == PriorityHigh }

// LogStatus is the workflow status written with each log row.
type LogStatus string

const StatusNew LogStatus = "NEW"

// LogRecord is one appended row of the decision log.
type LogRecord struct {
	RunID       uuid.UUID `json:"run_id" bson:"run_id"`
	Decision    Decision  `json:"decision" bson:"decision"`
	Status      LogStatus `json:"status" bson:"status"`
	ReplySent   bool      `json:"reply_sent" bson:"reply_sent"`
	ReplyError  string    `json:"reply_error,omitempty" bson:"reply_error,omitempty"`
	Alerted     bool      `json:"alerted" bson:"alerted"`
	AlertError  string    `json:"alert_error,omitempty" bson:"alert_error,omitempty"`
	ProcessedAt time.Time `json:"processed_at" bson:"processed_at"`
}

// NewLogRecord creates a record with status NEW.
func NewLogRecord(runID uuid.UUID, d Decision, now time.Time) LogRecord {
	return LogRecord{
		RunID:       runID,
		Decision:    d,
		Status:      StatusNew,
		ProcessedAt: now,
	}
}
