package mongodb

import (
	"context"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Decision Log Adapter
// =============================================================================

const DefaultCollection = "triage_decisions"

// DecisionLogAdapter implements out.DecisionLog using MongoDB.
type DecisionLogAdapter struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewDecisionLogAdapter uses database.collection on client. The adapter
// disconnects the client on Close.
func NewDecisionLogAdapter(client *mongo.Client, database, collection string) *DecisionLogAdapter {
	if collection == "" {
		collection = DefaultCollection
	}
	return &DecisionLogAdapter{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
}

// EnsureIndexes creates the indexes used for per-run and per-category lookups.
func (a *DecisionLogAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "category", Value: 1}, {Key: "processed_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "processed_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type decisionDocument struct {
	RunID       string    `bson:"run_id"`
	MessageID   string    `bson:"message_id"`
	ThreadID    string    `bson:"thread_id"`
	From        string    `bson:"from"`
	Subject     string    `bson:"subject"`
	Date        string    `bson:"date"`
	Body        string    `bson:"body"`
	Category    string    `bson:"category"`
	Priority    string    `bson:"priority"`
	Sentiment   string    `bson:"sentiment"`
	Source      string    `bson:"source"`
	OwnerAction string    `bson:"owner_action"`
	AutoReply   string    `bson:"auto_reply,omitempty"`
	Status      string    `bson:"status"`
	ReplySent   bool      `bson:"reply_sent"`
	ReplyError  string    `bson:"reply_error,omitempty"`
	Alerted     bool      `bson:"alerted"`
	AlertError  string    `bson:"alert_error,omitempty"`
	ProcessedAt time.Time `bson:"processed_at"`
}

func toDocument(rec domain.LogRecord) *decisionDocument {
	d := rec.Decision
	return &decisionDocument{
		RunID:       rec.RunID.String(),
		MessageID:   d.Message.ID,
		ThreadID:    d.Message.ThreadID,
		From:        d.Message.From,
		Subject:     d.Message.Subject,
		Date:        d.Message.Date,
		Body:        d.Message.Body,
		Category:    string(d.Category()),
		Priority:    string(d.Priority()),
		Sentiment:   string(d.Sentiment()),
		Source:      string(d.Classification.Source),
		OwnerAction: string(d.OwnerAction),
		AutoReply:   d.AutoReply,
		Status:      string(rec.Status),
		ReplySent:   rec.ReplySent,
		ReplyError:  rec.ReplyError,
		Alerted:     rec.Alerted,
		AlertError:  rec.AlertError,
		ProcessedAt: rec.ProcessedAt.UTC(),
	}
}

// =============================================================================
// Operations
// =============================================================================

// Append inserts all records; one bad document does not block the rest.
func (a *DecisionLogAdapter) Append(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		docs = append(docs, toDocument(rec))
	}

	res, err := a.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return apperr.DatabaseError("insert decisions", err)
	}

	logger.WithFields(map[string]any{
		"collection": a.collection.Name(),
		"rows":       len(res.InsertedIDs),
	}).Debug("[MongoDB] decision log updated")
	return nil
}

// CountByCategory aggregates decision counts per category.
func (a *DecisionLogAdapter) CountByCategory(ctx context.Context) (map[domain.Category]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := a.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.DatabaseError("count decisions", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Category string `bson:"_id"`
		N        int    `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, apperr.DatabaseError("count decisions", err)
	}

	counts := make(map[domain.Category]int, len(rows))
	for _, r := range rows {
		counts[domain.Category(r.Category)] = r.N
	}
	return counts, nil
}

func (a *DecisionLogAdapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

var _ out.DecisionLog = (*DecisionLogAdapter)(nil)
