// Package provider contains the mailbox adapters (Gmail API, IMAP/SMTP).
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	"mailtriage/core/port/out"
	"mailtriage/pkg/httputil"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/resilience"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailboxPort for Gmail.
type GmailAdapter struct {
	svc         *gmail.Service
	cb          *resilience.Breaker
	maxMessages int64

	addrOnce sync.Once
	address  string
	addrErr  error
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	TokenSource oauth2.TokenSource
	MaxMessages int
	// Endpoint overrides the API base URL (tests).
	Endpoint string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(ctx context.Context, cfg *GmailConfig) (*GmailAdapter, error) {
	httpClient := httputil.NewOptimizedClient(httputil.GmailClientConfig())
	opts := []option.ClientOption{}
	if cfg.TokenSource != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, cfg.TokenSource)))
	} else {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, wrapGmailError(err, "failed to create gmail service")
	}

	maxMessages := int64(cfg.MaxMessages)
	if maxMessages <= 0 {
		maxMessages = 100
	}

	return &GmailAdapter{
		svc:         svc,
		cb:          resilience.NewBreaker(resilience.DefaultBreakerConfig("gmail-api")),
		maxMessages: maxMessages,
	}, nil
}

func (a *GmailAdapter) GetProviderName() string {
	return "gmail"
}

// FetchUnread lists INBOX messages labelled UNREAD and fetches each in full.
func (a *GmailAdapter) FetchUnread(ctx context.Context) ([]*out.MailMessage, error) {
	var refs []*gmail.Message
	pageToken := ""
	for {
		call := a.svc.Users.Messages.List(gmailUser).
			LabelIds("INBOX", "UNREAD").
			MaxResults(a.maxMessages).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := resilience.Execute(ctx, a.cb, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
			resp, err := call.Do()
			return resp, permanentIfClientError(err)
		})
		if err != nil {
			return nil, wrapGmailError(err, "failed to list unread messages")
		}

		refs = append(refs, resp.Messages...)
		pageToken = resp.NextPageToken
		if pageToken == "" || int64(len(refs)) >= a.maxMessages {
			break
		}
	}
	if int64(len(refs)) > a.maxMessages {
		refs = refs[:a.maxMessages]
	}

	// The list is newest first; process in arrival order.
	messages := make([]*out.MailMessage, 0, len(refs))
	for i := len(refs) - 1; i >= 0; i-- {
		id := refs[i].Id
		full, err := resilience.Execute(ctx, a.cb, func(ctx context.Context) (*gmail.Message, error) {
			msg, err := a.svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
			return msg, permanentIfClientError(err)
		})
		if err != nil {
			if out.IsProviderError(wrapGmailError(err, ""), out.ProviderErrNotFound) {
				logger.WithField("message_id", id).Warn("[Gmail] message disappeared before fetch")
				continue
			}
			return nil, wrapGmailError(err, "failed to get message")
		}
		messages = append(messages, convertMessage(full))
	}
	return messages, nil
}

// MarkRead removes the UNREAD label.
func (a *GmailAdapter) MarkRead(ctx context.Context, messageID string) error {
	return a.modifyLabels(ctx, messageID, nil, []string{"UNREAD"})
}

// SendReply sends a plain-text reply in the original thread.
func (a *GmailAdapter) SendReply(ctx context.Context, reply *out.OutgoingReply) (*out.SendResult, error) {
	from, err := a.mailboxAddress(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := BuildReply(from, reply)
	if err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrInvalidInput, "failed to build reply", err, false)
	}

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: reply.ThreadID,
	}
	sent, err := resilience.Execute(ctx, a.cb, func(ctx context.Context) (*gmail.Message, error) {
		sent, err := a.svc.Users.Messages.Send(gmailUser, msg).Context(ctx).Do()
		return sent, permanentIfClientError(err)
	})
	if err != nil {
		return nil, wrapGmailError(err, "failed to send reply")
	}

	return &out.SendResult{MessageID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (a *GmailAdapter) IsCircuitOpen() bool {
	return a.cb.IsOpen()
}

func (a *GmailAdapter) mailboxAddress(ctx context.Context) (string, error) {
	a.addrOnce.Do(func() {
		profile, err := resilience.Execute(ctx, a.cb, func(ctx context.Context) (*gmail.Profile, error) {
			profile, err := a.svc.Users.GetProfile(gmailUser).Context(ctx).Do()
			return profile, permanentIfClientError(err)
		})
		if err != nil {
			a.addrErr = wrapGmailError(err, "failed to get profile")
			return
		}
		a.address = profile.EmailAddress
	})
	return a.address, a.addrErr
}

func (a *GmailAdapter) modifyLabels(ctx context.Context, messageID string, addLabels, removeLabels []string) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}
	_, err := resilience.Execute(ctx, a.cb, func(ctx context.Context) (*gmail.Message, error) {
		msg, err := a.svc.Users.Messages.Modify(gmailUser, messageID, req).Context(ctx).Do()
		return msg, permanentIfClientError(err)
	})
	if err != nil {
		return wrapGmailError(err, "failed to modify labels")
	}
	return nil
}

// permanentIfClientError marks client-side API errors so they do not trip
// the breaker.
func permanentIfClientError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403, 404:
			return resilience.Permanent(err)
		}
	}
	return err
}

// =============================================================================
// Conversion
// =============================================================================

func convertMessage(msg *gmail.Message) *out.MailMessage {
	m := &out.MailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload == nil {
		return m
	}

	headers := msg.Payload.Headers
	m.From = getHeader(headers, "From")
	m.Subject = getHeader(headers, "Subject")
	m.Date = getHeader(headers, "Date")
	m.InternetMessageID = getHeader(headers, "Message-ID")
	m.Body = extractBody(msg.Payload)
	return m
}

// extractBody concatenates text/plain parts of a (nested) multipart
// payload. HTML is only used while no text has been found.
func extractBody(payload *gmail.MessagePart) string {
	if len(payload.Parts) == 0 {
		data := decodePart(payload)
		if payload.MimeType == "text/html" {
			return HTMLToText(data)
		}
		return data
	}
	return extractParts(payload.Parts, 0)
}

func extractParts(parts []*gmail.MessagePart, depth int) string {
	var text strings.Builder
	for _, part := range parts {
		if len(part.Parts) > 0 {
			if depth < 10 {
				text.WriteString(extractParts(part.Parts, depth+1))
			}
			continue
		}

		data := decodePart(part)
		if data == "" {
			continue
		}
		switch part.MimeType {
		case "text/plain":
			text.WriteString(data)
			text.WriteString("\n")
		case "text/html":
			if text.Len() == 0 {
				text.WriteString(HTMLToText(data))
				text.WriteString("\n")
			}
		}
	}
	return text.String()
}

func decodePart(part *gmail.MessagePart) string {
	if part == nil || part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.DecodeString(part.Body.Data)
	if err != nil {
		// Gmail sometimes omits padding.
		data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(data), "")
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// =============================================================================
// Errors
// =============================================================================

func wrapGmailError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return out.NewProviderError("gmail", out.ProviderErrServer, "Circuit open", err, true)
	}
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "Server error", err, true)
		}
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return out.NewProviderError("gmail", out.ProviderErrNetwork, "Network error", err, true)
	}

	if defaultMsg == "" {
		defaultMsg = "Gmail API error"
	}
	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err, true)
}

var _ out.MailboxPort = (*GmailAdapter)(nil)
