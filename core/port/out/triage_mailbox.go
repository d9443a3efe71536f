package out

import (
	"context"
	"errors"
)

// MailboxPort is the outbound port for the monitored mailbox (Gmail, IMAP).
type MailboxPort interface {
	// FetchUnread returns the unread messages of the inbox, oldest first.
	FetchUnread(ctx context.Context) ([]*MailMessage, error)
	MarkRead(ctx context.Context, messageID string) error
	SendReply(ctx context.Context, reply *OutgoingReply) (*SendResult, error)

	GetProviderName() string
}

// MailMessage is a message as delivered by the mail store, before
// normalization.
type MailMessage struct {
	ID                string
	ThreadID          string
	InternetMessageID string
	From              string
	Subject           string
	Date              string
	Body              string // text/plain, or HTML converted to text when no plain part exists
}

// OutgoingReply is a threaded reply to an inbound message.
type OutgoingReply struct {
	ThreadID  string
	InReplyTo string // RFC 5322 Message-ID of the message answered
	To        string
	Subject   string
	Body      string
}

// SendResult holds the identifiers assigned by the mail store.
type SendResult struct {
	MessageID string
	ThreadID  string
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a mail or notification provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsProviderError reports whether err carries a ProviderError with code.
func IsProviderError(err error, code ProviderErrorCode) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
