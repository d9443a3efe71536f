package email

import (
	"testing"

	"mailtriage/core/port/out"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "url in parentheses and citation",
			in:   "Check this (https://example.com/x) [1] now   !",
			want: "Check this now!",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "whitespace only",
			in:   " \n\t ",
			want: "",
		},
		{
			name: "bare url",
			in:   "See https://example.com/docs?a=1 for details .",
			want: "See for details.",
		},
		{
			name: "url with balanced parentheses inside",
			in:   "Wiki (https://en.wikipedia.org/wiki/Go_(language)) is good",
			want: "Wiki is good",
		},
		{
			name: "multiple citations",
			in:   "Fast [6] and cheap [7] , really",
			want: "Fast and cheap, really",
		},
		{
			name: "newlines and tags",
			in:   "<p>Hello</p>\n\n<b>there</b>\r\nfriend ?",
			want: "Hello there friend?",
		},
		{
			name: "space before closing paren",
			in:   "(note )",
			want: "(note)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBody(tt.in))
		})
	}
}

func TestNewMessageKeepsRawBody(t *testing.T) {
	raw := "Hi (https://x.io) [2] team ."
	msg := NewMessage(&out.MailMessage{
		ID:       "m1",
		ThreadID: "t1",
		From:     "Jane <jane@x.com>",
		Subject:  "Hello",
		Date:     "Mon, 1 Jan 2024 10:00:00 +0000",
		Body:     raw,
	})

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, raw, msg.RawBody)
	assert.Equal(t, "Hi team.", msg.Body)
}

func TestNewMessageNil(t *testing.T) {
	msg := NewMessage(nil)
	assert.Empty(t, msg.Body)
	assert.Empty(t, msg.RawBody)
}
