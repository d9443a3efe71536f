package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mailtriage/adapter/out/notify"
	"mailtriage/config"
	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/core/service/triage"
	"mailtriage/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubMailbox struct {
	messages []*out.MailMessage
	read     []string
	replies  []*out.OutgoingReply
}

func (s *stubMailbox) FetchUnread(ctx context.Context) ([]*out.MailMessage, error) {
	return s.messages, nil
}

func (s *stubMailbox) MarkRead(ctx context.Context, id string) error {
	s.read = append(s.read, id)
	return nil
}

func (s *stubMailbox) SendReply(ctx context.Context, r *out.OutgoingReply) (*out.SendResult, error) {
	s.replies = append(s.replies, r)
	return &out.SendResult{MessageID: "sent-" + r.ThreadID, ThreadID: r.ThreadID}, nil
}

func (s *stubMailbox) GetProviderName() string { return "stub" }

type stubLog struct {
	appended [][]domain.LogRecord
	err      error
	closed   bool
}

func (s *stubLog) Append(ctx context.Context, records []domain.LogRecord) error {
	s.appended = append(s.appended, records)
	return s.err
}

func (s *stubLog) Close() error {
	s.closed = true
	return nil
}

func TestMultiLogAppendsToEverySink(t *testing.T) {
	failing := &stubLog{err: errors.New("disk full")}
	ok := &stubLog{}
	m := &multiLog{sinks: []out.DecisionLog{failing, ok}}

	err := m.Append(context.Background(), []domain.LogRecord{{}})
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, ok.appended, 1)

	require.NoError(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestNewNotifierSelection(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, newNotifier(cfg))

	cfg.TeamsWebhookURL = "http://127.0.0.1/hook"
	assert.IsType(t, &notify.TeamsNotifier{}, newNotifier(cfg))

	cfg.SendGridAPIKey = "k"
	cfg.AlertEmailFrom = "bot@example.com"
	cfg.AlertEmailTo = "owner@example.com"
	multi, ok := newNotifier(cfg).(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestNewLLMClientWithoutKeyIsNil(t *testing.T) {
	client, err := newLLMClient(context.Background(), &config.Config{LLMProvider: config.LLMProviderGroq})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewDecisionLogsWithSQLiteMirror(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		ExcelPath:   filepath.Join(dir, "leads.xlsx"),
		ExcelSheet:  "Leads",
		LogDBDriver: "sqlite",
		LogDBURL:    filepath.Join(dir, "triage.db"),
		LogDBTable:  "triage_decisions",
	}

	ctx := context.Background()
	logs, err := newDecisionLogs(ctx, cfg)
	require.NoError(t, err)
	defer logs.Close()
	assert.Len(t, logs.sinks, 2)

	rec := domain.NewLogRecord(uuid.New(), domain.Decision{
		Message:        domain.Message{ID: "m1", From: "a@x.com", Subject: "Pricing"},
		Classification: domain.ClassificationResult{Category: domain.CategoryInquiry, Priority: domain.PriorityLow, Sentiment: domain.SentimentNeutral},
		OwnerAction:    domain.OwnerActionRequired,
	}, time.Now())
	require.NoError(t, logs.Append(ctx, []domain.LogRecord{rec}))

	counts, err := logs.CountByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Category]int{domain.CategoryInquiry: 1}, counts)

	var buf bytes.Buffer
	logger.Init(logger.Config{Level: logger.LevelInfo, Output: &buf})
	defer logger.Init(logger.Config{Level: logger.LevelInfo, Output: os.Stderr})
	logTotals(ctx, logs)
	assert.Contains(t, buf.String(), "decision log totals")
	assert.Contains(t, buf.String(), `"total_inquiry":1`)
}

func TestWorkbookOnlyLogHasNoTotals(t *testing.T) {
	cfg := &config.Config{ExcelPath: filepath.Join(t.TempDir(), "leads.xlsx"), ExcelSheet: "Leads"}
	logs, err := newDecisionLogs(context.Background(), cfg)
	require.NoError(t, err)
	defer logs.Close()

	counts, err := logs.CountByCategory(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, counts)
}

func TestRulesOnlyRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{ExcelPath: filepath.Join(dir, "leads.xlsx"), ExcelSheet: "Leads"}

	pipeline, err := newPipeline(config.DefaultRules(40), nil)
	require.NoError(t, err)
	logs, err := newDecisionLogs(context.Background(), cfg)
	require.NoError(t, err)
	defer logs.Close()

	mailbox := &stubMailbox{messages: []*out.MailMessage{
		{ID: "1", ThreadID: "t1", From: "Jane Doe <jane@x.com>", Subject: "Bad service", Body: "I have a complaint about my order"},
		{ID: "2", ThreadID: "t2", From: "no-reply@bank.com", Subject: "Your OTP", Body: "Code 1234"},
		{ID: "3", ThreadID: "t3", From: "bob@x.com", Subject: "Pricing", Body: "What does the pro plan cost?"},
	}}

	svc := triage.NewRunService(mailbox, pipeline, nil, logs)
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, map[domain.Category]int{
		domain.CategoryComplaint: 1,
		domain.CategorySystem:    1,
		domain.CategoryInquiry:   1,
	}, summary.ByCategory)
	assert.Equal(t, []string{"1", "2", "3"}, mailbox.read)

	// Only the complaint has a template reply without a model.
	require.Len(t, mailbox.replies, 1)
	assert.Equal(t, "Re: Bad service", mailbox.replies[0].Subject)
	assert.Contains(t, mailbox.replies[0].Body, "Hi Jane Doe,")

	f, err := excelize.OpenFile(cfg.ExcelPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Leads")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "System", rows[2][4])
	assert.Equal(t, "Not Required", rows[2][6])
}

func TestSortedCategories(t *testing.T) {
	got := SortedCategories(map[domain.Category]int{
		domain.CategorySystem:  1,
		domain.CategoryInquiry: 2,
		domain.CategoryOptOut:  3,
	})
	assert.Equal(t, []domain.Category{domain.CategoryInquiry, domain.CategoryOptOut, domain.CategorySystem}, got)
	assert.Equal(t, "opt_out", categoryKey(domain.CategoryOptOut))
}
