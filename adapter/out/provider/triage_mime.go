package provider

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"mailtriage/core/port/out"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/jhillyerd/enmime"
)

// HTMLToText converts an HTML body to readable text. On conversion failure
// the HTML is returned unchanged; the normalizer strips leftover tags.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return md
}

// ParseRawMessage reads an RFC 5322 message. The body is the text part, or
// the HTML part converted to text when there is no text part.
func ParseRawMessage(r io.Reader) (*out.MailMessage, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		body = HTMLToText(env.HTML)
	}

	return &out.MailMessage{
		InternetMessageID: strings.TrimSpace(env.GetHeader("Message-ID")),
		From:              env.GetHeader("From"),
		Subject:           env.GetHeader("Subject"),
		Date:              env.GetHeader("Date"),
		Body:              body,
	}, nil
}

// BuildReply encodes a plain-text threaded reply. from is the mailbox address.
func BuildReply(from string, reply *out.OutgoingReply) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	toAddr, err := mail.ParseAddress(reply.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", reply.To, err)
	}

	builder := enmime.Builder().
		From(fromAddr.Name, fromAddr.Address).
		To(toAddr.Name, toAddr.Address).
		Subject(reply.Subject).
		Text([]byte(reply.Body))
	if reply.InReplyTo != "" {
		builder = builder.
			Header("In-Reply-To", reply.InReplyTo).
			Header("References", reply.InReplyTo)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build reply: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return buf.Bytes(), nil
}
