package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"Inquiry", CategoryInquiry, true},
		{"complaint", CategoryComplaint, true},
		{" FEEDBACK ", CategoryFeedback, true},
		{"Opt-out", CategoryOptOut, true},
		{"optout", CategoryOptOut, true},
		{"Opt Out", CategoryOptOut, true},
		{"general", CategoryGeneral, true},
		{"System", CategorySystem, true},
		{"Sales", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePriorityAndSentiment(t *testing.T) {
	p, ok := ParsePriority("HIGH")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)

	s, ok := ParseSentiment("negative")
	assert.True(t, ok)
	assert.Equal(t, SentimentNegative, s)

	_, ok = ParseSentiment("angry")
	assert.False(t, ok)
}

func TestReplyTemplatesRender(t *testing.T) {
	tmpl := DefaultReplyTemplates()

	got, ok := tmpl.Render(CategoryComplaint, "Jane Doe")
	assert.True(t, ok)
	assert.Equal(t, "Hi Jane Doe,\n\nWe are sorry to hear about your experience. Our support team will contact you immediately.\n\nBest regards,\nTeam", got)

	_, ok = tmpl.Render(CategorySystem, "x")
	assert.False(t, ok)
}

func TestReplyTemplatesMergeDoesNotMutate(t *testing.T) {
	base := DefaultReplyTemplates()
	merged := base.Merge(ReplyTemplates{CategoryComplaint: "Sorry {name}"})

	assert.Equal(t, "Sorry {name}", merged[CategoryComplaint])
	assert.NotEqual(t, "Sorry {name}", base[CategoryComplaint])
	assert.Equal(t, base[CategoryInquiry], merged[CategoryInquiry])
}

func TestNewLogRecord(t *testing.T) {
	runID := uuid.New()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := Decision{Classification: SystemClassification(), OwnerAction: OwnerActionNotRequired}

	rec := NewLogRecord(runID, d, now)
	assert.Equal(t, StatusNew, rec.Status)
	assert.Equal(t, runID, rec.RunID)
	assert.Equal(t, now, rec.ProcessedAt)
	assert.False(t, rec.ReplySent)
	assert.False(t, rec.Decision.IsHighPriority())
}
