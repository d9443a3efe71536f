package out

import "context"

// ClassificationOracle asks a language model for category, priority and
// sentiment of an email.
type ClassificationOracle interface {
	// ClassifyEmail returns an error for transport failures and for any
	// response that is not strict JSON with all three known labels.
	ClassifyEmail(ctx context.Context, subject, body string) (*OracleClassification, error)
}

// OracleClassification is a validated oracle answer. The values are the raw
// strings from the model; callers parse them into domain enums.
type OracleClassification struct {
	Category  string `json:"category"`
	Priority  string `json:"priority"`
	Sentiment string `json:"sentiment"`
}

// ReplyOracle drafts an acknowledgement-only reply.
type ReplyOracle interface {
	GenerateAckReply(ctx context.Context, subject, body string) (string, error)
}
