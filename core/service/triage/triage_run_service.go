package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"

	"github.com/google/uuid"
)

// RunSummary describes one completed run.
type RunSummary struct {
	RunID         uuid.UUID
	Fetched       int
	ByCategory    map[domain.Category]int
	RepliesSent   int
	ReplyFailures int
	AlertsSent    int
	AlertFailures int
	DryRun        bool
	Duration      time.Duration
}

// RunService processes every unread message of the mailbox once.
type RunService struct {
	mailbox  out.MailboxPort
	pipeline *Pipeline
	notifier out.AlertNotifier
	sink     out.DecisionLog
	dryRun   bool
	now      func() time.Time
}

// RunOption configures a RunService.
type RunOption func(*RunService)

// WithDryRun leaves messages unread and sends neither replies nor alerts.
// Decisions are still logged.
func WithDryRun(dryRun bool) RunOption {
	return func(s *RunService) { s.dryRun = dryRun }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunOption {
	return func(s *RunService) { s.now = now }
}

func NewRunService(
	mailbox out.MailboxPort,
	pipeline *Pipeline,
	notifier out.AlertNotifier,
	sink out.DecisionLog,
	opts ...RunOption,
) *RunService {
	s := &RunService{
		mailbox:  mailbox,
		pipeline: pipeline,
		notifier: notifier,
		sink:     sink,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches unread mail, marks it read, processes each message in order,
// sends replies and alerts, and appends all records in one batch.
// Only fetch and log failures are returned; reply and alert failures are
// recorded on the log rows.
func (s *RunService) Run(ctx context.Context) (*RunSummary, error) {
	start := s.now()
	runID := uuid.New()
	ctx = logger.ContextWithRunID(ctx, runID.String())
	log := logger.WithContext(ctx).WithField("provider", s.mailbox.GetProviderName())

	summary := &RunSummary{
		RunID:      runID,
		ByCategory: make(map[domain.Category]int),
		DryRun:     s.dryRun,
	}

	messages, err := s.mailbox.FetchUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	summary.Fetched = len(messages)
	if len(messages) == 0 {
		log.Info("No unread emails found")
		summary.Duration = s.now().Sub(start)
		return summary, nil
	}
	log.Info("Total unread emails fetched: %d", len(messages))

	if !s.dryRun {
		for _, m := range messages {
			if err := s.mailbox.MarkRead(ctx, m.ID); err != nil {
				log.WithField("message_id", m.ID).WithError(err).Warn("failed to mark message read")
			}
		}
	}

	records := make([]domain.LogRecord, 0, len(messages))
	for _, m := range messages {
		d := s.pipeline.Process(ctx, m)
		rec := domain.NewLogRecord(runID, d, s.now())
		summary.ByCategory[d.Category()]++

		if !s.dryRun {
			s.sendReply(ctx, &rec, summary)
			s.alert(ctx, &rec, summary)
		}
		records = append(records, rec)
	}

	// Messages are already marked read, so the log must be written even if
	// the run context was cancelled meanwhile.
	if err := s.sink.Append(context.WithoutCancel(ctx), records); err != nil {
		return summary, fmt.Errorf("append decision log: %w", err)
	}

	summary.Duration = s.now().Sub(start)
	log.WithDuration(summary.Duration).WithFields(map[string]any{
		"fetched":      summary.Fetched,
		"replies_sent": summary.RepliesSent,
		"alerts_sent":  summary.AlertsSent,
	}).Info("Email processing pipeline completed successfully")
	return summary, nil
}

func (s *RunService) sendReply(ctx context.Context, rec *domain.LogRecord, summary *RunSummary) {
	d := &rec.Decision
	if !d.HasReply() {
		return
	}

	start := time.Now()
	_, err := s.mailbox.SendReply(ctx, &out.OutgoingReply{
		ThreadID:  d.Message.ThreadID,
		InReplyTo: d.Message.InternetMessageID,
		To:        d.Message.From,
		Subject:   ReplySubject(d.Message.Subject),
		Body:      d.AutoReply,
	})
	metrics.Since("reply", start, err)
	if err != nil {
		logger.WithContext(ctx).
			WithField("message_id", d.Message.ID).
			WithError(err).
			Error("failed to send auto-reply")
		rec.ReplyError = err.Error()
		summary.ReplyFailures++
		return
	}
	rec.ReplySent = true
	summary.RepliesSent++
}

func (s *RunService) alert(ctx context.Context, rec *domain.LogRecord, summary *RunSummary) {
	d := &rec.Decision
	if !d.IsHighPriority() {
		return
	}
	if s.notifier == nil {
		logger.WithContext(ctx).
			WithField("message_id", d.Message.ID).
			Warn("no alert channel configured, high priority alert skipped")
		return
	}

	start := time.Now()
	err := s.notifier.NotifyHighPriority(ctx, d)
	metrics.Since("alert", start, err)
	if err != nil {
		logger.WithContext(ctx).
			WithField("message_id", d.Message.ID).
			WithError(err).
			Error("failed to send high priority alert")
		rec.AlertError = err.Error()
		summary.AlertFailures++
		return
	}
	rec.Alerted = true
	summary.AlertsSent++
}

// ReplySubject prefixes "Re: " unless the subject already has it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}
