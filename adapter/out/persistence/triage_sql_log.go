// Package persistence mirrors the decision log into a SQL table.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const DefaultTable = "triage_decisions"

var (
	ErrInvalidInput = errors.New("invalid input")

	tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// decisionRow represents the database row.
type decisionRow struct {
	RunID       string    `db:"run_id"`
	MessageID   string    `db:"message_id"`
	ThreadID    string    `db:"thread_id"`
	FromAddr    string    `db:"from_addr"`
	Subject     string    `db:"subject"`
	SentDate    string    `db:"sent_date"`
	Body        string    `db:"body"`
	Category    string    `db:"category"`
	Priority    string    `db:"priority"`
	Sentiment   string    `db:"sentiment"`
	Source      string    `db:"source"`
	OwnerAction string    `db:"owner_action"`
	AutoReply   string    `db:"auto_reply"`
	Status      string    `db:"status"`
	ReplySent   bool      `db:"reply_sent"`
	ReplyError  string    `db:"reply_error"`
	Alerted     bool      `db:"alerted"`
	AlertError  string    `db:"alert_error"`
	ProcessedAt time.Time `db:"processed_at"`
}

func toRow(rec domain.LogRecord) decisionRow {
	d := rec.Decision
	return decisionRow{
		RunID:       rec.RunID.String(),
		MessageID:   d.Message.ID,
		ThreadID:    d.Message.ThreadID,
		FromAddr:    d.Message.From,
		Subject:     d.Message.Subject,
		SentDate:    d.Message.Date,
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

// SQLLog implements out.DecisionLog on PostgreSQL (pgx) or SQLite.
type SQLLog struct {
	db     *sqlx.DB
	table  string
	insert string
}

// NewSQLLog creates the table if missing. The log owns db and closes it.
func NewSQLLog(ctx context.Context, db *sqlx.DB, table string) (*SQLLog, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: table name %q", ErrInvalidInput, table)
	}

	l := &SQLLog{db: db, table: pq.QuoteIdentifier(table)}
	l.insert = `INSERT INTO ` + l.table + ` (
		run_id, message_id, thread_id, from_addr, subject, sent_date, body,
		category, priority, sentiment, source, owner_action, auto_reply, status,
		reply_sent, reply_error, alerted, alert_error, processed_at
	) VALUES (
		:run_id, :message_id, :thread_id, :from_addr, :subject, :sent_date, :body,
		:category, :priority, :sentiment, :source, :owner_action, :auto_reply, :status,
		:reply_sent, :reply_error, :alerted, :alert_error, :processed_at
	)`

	if _, err := db.ExecContext(ctx, l.schema()); err != nil {
		return nil, apperr.DatabaseError("create decision table", err)
	}
	return l, nil
}

func (l *SQLLog) schema() string {
	tsType := "TIMESTAMP"
	if l.db.DriverName() == "pgx" {
		tsType = "TIMESTAMPTZ"
	}
	return `CREATE TABLE IF NOT EXISTS ` + l.table + ` (
		run_id       TEXT NOT NULL,
		message_id   TEXT NOT NULL,
		thread_id    TEXT NOT NULL DEFAULT '',
		from_addr    TEXT NOT NULL DEFAULT '',
		subject      TEXT NOT NULL DEFAULT '',
		sent_date    TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL,
		priority     TEXT NOT NULL,
		sentiment    TEXT NOT NULL,
		source       TEXT NOT NULL DEFAULT '',
		owner_action TEXT NOT NULL,
		auto_reply   TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		reply_sent   BOOLEAN NOT NULL DEFAULT FALSE,
		reply_error  TEXT NOT NULL DEFAULT '',
		alerted      BOOLEAN NOT NULL DEFAULT FALSE,
		alert_error  TEXT NOT NULL DEFAULT '',
		processed_at ` + tsType + ` NOT NULL,
		PRIMARY KEY (run_id, message_id)
	)`
}

// Append inserts the batch in one transaction.
func (l *SQLLog) Append(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, l.insert, toRow(rec)); err != nil {
			return apperr.DatabaseError("insert decision "+rec.Decision.Message.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit", err)
	}

	logger.WithFields(map[string]any{
		"table": l.table,
		"rows":  len(records),
	}).Debug("[SQL] decision log updated")
	return nil
}

// CountByCategory returns how many decisions each category has across runs.
func (l *SQLLog) CountByCategory(ctx context.Context) (map[domain.Category]int, error) {
	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	q := `SELECT category, COUNT(*) AS n FROM ` + l.table + ` GROUP BY category`
	if err := l.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, apperr.DatabaseError("count decisions", err)
	}

	counts := make(map[domain.Category]int, len(rows))
	for _, r := range rows {
		counts[domain.Category(r.Category)] = r.N
	}
	return counts, nil
}

func (l *SQLLog) Close() error {
	return l.db.Close()
}

var _ out.DecisionLog = (*SQLLog)(nil)
