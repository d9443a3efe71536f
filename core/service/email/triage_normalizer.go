// Package email turns mailbox messages into normalized domain messages.
package email

import (
	"regexp"
	"strings"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

var (
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	newlineRunRe  = regexp.MustCompile(`[\r\n]+`)
	urlRe         = regexp.MustCompile(`\(?https?://[^\s()]+(?:\([^\s()]*\))?[^\s()]*\)?`)
	citationRe    = regexp.MustCompile(`\[\d+\]`)
	spaceBeforeRe = regexp.MustCompile(`\s+([.,;:!?)])`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// CleanReaderBody flattens a body the way the mail reader hands it over:
// newline runs become a space and leftover HTML tags are dropped.
func CleanReaderBody(body string) string {
	if body == "" {
		return ""
	}
	body = newlineRunRe.ReplaceAllString(body, " ")
	body = tagRe.ReplaceAllString(body, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(body, " "))
}

// NormalizeBody removes URLs (with one layer of wrapping parentheses) and
// [n] citation markers, drops whitespace before punctuation and collapses
// whitespace. It never fails; empty input gives empty output.
func NormalizeBody(raw string) string {
	if raw == "" {
		return ""
	}
	text := CleanReaderBody(raw)
	text = urlRe.ReplaceAllString(text, "")
	text = citationRe.ReplaceAllString(text, "")
	text = spaceBeforeRe.ReplaceAllString(text, "$1")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NewMessage builds the immutable domain message. The untouched body is kept
// as RawBody.
func NewMessage(m *out.MailMessage) domain.Message {
	if m == nil {
		return domain.Message{}
	}
	return domain.Message{
		ID:                m.ID,
		ThreadID:          m.ThreadID,
		InternetMessageID: m.InternetMessageID,
		From:              m.From,
		Subject:           m.Subject,
		Date:              m.Date,
		RawBody:           m.Body,
		Body:              NormalizeBody(m.Body),
	}
}
