package reply

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailtriage/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestSenderName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe <jane@x.com>", "Jane Doe"},
		{"john.smith@x.com", "John Smith"},
		{`"Mary Ann" <mary@x.com>`, "Mary Ann"},
		{"bob LEE <bob@x.com>", "Bob Lee"},
		{"<anna.maria@x.com>", "Anna Maria"},
		{"support", "Support"},
		{"Sean O'brien <s@x.com>", "Sean O'Brien"},
		{"jane_doe@x.com", "Jane_Doe"},
		{"john2smith@x.com", "John2Smith"},
		{"ÉLODIE <e@x.com>", "Élodie"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SenderName(tt.in))
		})
	}
}

type fakeReplyOracle struct {
	reply string
	err   error
	calls int
}

func (f *fakeReplyOracle) GenerateAckReply(ctx context.Context, subject, body string) (string, error) {
	f.calls++
	return f.reply, f.err
}

const validReply = "Thank you for contacting us. We have received your message.\n\nCustomer Support Team"

func TestComposerComplaintUsesTemplate(t *testing.T) {
	oracle := &fakeReplyOracle{reply: validReply}
	c := NewComposer(oracle)

	got := c.Compose(context.Background(), domain.CategoryComplaint, "Bad", "awful", "Jane Doe <jane@x.com>")

	assert.True(t, strings.HasPrefix(got, "Hi Jane Doe,"))
	assert.Contains(t, got, "We are sorry to hear about your experience.")
	assert.Zero(t, oracle.calls)
}

func TestComposerNoReplyCategories(t *testing.T) {
	for _, cat := range []domain.Category{domain.CategorySystem, domain.CategoryOptOut} {
		t.Run(string(cat), func(t *testing.T) {
			oracle := &fakeReplyOracle{reply: validReply}
			got := NewComposer(oracle).Compose(context.Background(), cat, "s", "b", "a@b.c")
			assert.Empty(t, got)
			assert.Zero(t, oracle.calls)
		})
	}
}

func TestComposerGeneratedReply(t *testing.T) {
	tests := []struct {
		name   string
		oracle *fakeReplyOracle
		body   string
		want   string
	}{
		{
			name:   "valid reply is trimmed",
			oracle: &fakeReplyOracle{reply: "\n  " + validReply + "  \n"},
			body:   "What does the plan cost?",
			want:   validReply,
		},
		{
			name:   "too short",
			oracle: &fakeReplyOracle{reply: "Thanks!"},
			body:   "Hello",
			want:   "",
		},
		{
			name:   "exactly minimum length after trim",
			oracle: &fakeReplyOracle{reply: "  " + strings.Repeat("a", 40) + "  "},
			body:   "Hello",
			want:   strings.Repeat("a", 40),
		},
		{
			name:   "echo of body is rejected case-insensitively",
			oracle: &fakeReplyOracle{reply: "PLEASE SEND ME THE FULL PRICE LIST FOR YOUR SERVICE"},
			body:   "Hi, please send me the full price list for your service today.",
			want:   "",
		},
		{
			name:   "oracle error",
			oracle: &fakeReplyOracle{err: errors.New("503")},
			body:   "Hello",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(tt.oracle)
			got := c.Compose(context.Background(), domain.CategoryInquiry, "Pricing", tt.body, "x@y.z")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, tt.oracle.calls)
		})
	}
}

func TestComposerFeedbackAndGeneralCallOracle(t *testing.T) {
	for _, cat := range []domain.Category{domain.CategoryFeedback, domain.CategoryGeneral} {
		oracle := &fakeReplyOracle{reply: validReply}
		got := NewComposer(oracle).Compose(context.Background(), cat, "s", "b", "a@b.c")
		assert.Equal(t, validReply, got)
		assert.Equal(t, 1, oracle.calls)
	}
}

func TestComposerOptions(t *testing.T) {
	oracle := &fakeReplyOracle{reply: "Thanks, noted. Customer Support Team"}
	c := NewComposer(oracle,
		WithMinLength(10),
		WithTemplates(domain.ReplyTemplates{domain.CategoryComplaint: "Sorry {name}."}),
	)

	assert.Equal(t, "Thanks, noted. Customer Support Team", c.Compose(context.Background(), domain.CategoryGeneral, "s", "b", "a@b.c"))
	assert.Equal(t, "Sorry Ann.", c.Compose(context.Background(), domain.CategoryComplaint, "s", "b", "ann@b.c"))
}

func TestComposerZeroMinLengthDisablesCheck(t *testing.T) {
	short := &fakeReplyOracle{reply: "Thanks!"}
	assert.Equal(t, "Thanks!", NewComposer(short, WithMinLength(0)).Compose(context.Background(), domain.CategoryGeneral, "s", "b", "a@b.c"))
	assert.Empty(t, NewComposer(short, WithMinLength(-5)).Compose(context.Background(), domain.CategoryGeneral, "s", "b", "a@b.c"))

	blank := &fakeReplyOracle{reply: "  \n "}
	assert.Empty(t, NewComposer(blank, WithMinLength(0)).Compose(context.Background(), domain.CategoryGeneral, "s", "b", "a@b.c"))
}

func TestComposerWithoutOracle(t *testing.T) {
	got := NewComposer(nil).Compose(context.Background(), domain.CategoryInquiry, "s", "b", "a@b.c")
	assert.Empty(t, got)
}
