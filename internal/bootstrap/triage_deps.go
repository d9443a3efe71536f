package bootstrap

import (
	"context"
	"errors"

	"mailtriage/adapter/out/mongodb"
	"mailtriage/adapter/out/notify"
	"mailtriage/adapter/out/persistence"
	"mailtriage/adapter/out/provider"
	"mailtriage/adapter/out/sheet"
	"mailtriage/config"
	"mailtriage/core/agent/llm"
	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/core/service/classification"
	"mailtriage/core/service/reply"
	"mailtriage/core/service/triage"
	"mailtriage/infra/database"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
)

// Dependencies holds everything a run needs.
type Dependencies struct {
	Config *config.Config
	Rules  *config.Rules

	// Nil when no LLM key is configured.
	LLM *llm.Client

	Mailbox     out.MailboxPort
	Notifier    out.AlertNotifier
	DecisionLog out.DecisionLog

	Pipeline   *triage.Pipeline
	RunService *triage.RunService
}

// NewDependencies wires adapters and services. The returned cleanup closes
// every opened sink.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Rules
	rules, err := config.LoadRules(cfg.RulesFile, cfg.MinReplyLength)
	if err != nil {
		return fail(err)
	}
	deps.Rules = rules.WithExtraSystemPatterns(cfg.ExtraSystemPatterns)

	// LLM
	deps.LLM, err = newLLMClient(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	// Mailbox
	deps.Mailbox, err = newMailbox(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	// Alerts
	deps.Notifier = newNotifier(cfg)

	// Decision log
	sinks, err := newDecisionLogs(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	deps.DecisionLog = sinks
	cleanups = append(cleanups, func() {
		if err := sinks.Close(); err != nil {
			logger.WithError(err).Warn("failed to close decision log")
		}
	})

	// Services
	deps.Pipeline, err = newPipeline(deps.Rules, deps.LLM)
	if err != nil {
		return fail(err)
	}
	deps.RunService = triage.NewRunService(
		deps.Mailbox,
		deps.Pipeline,
		deps.Notifier,
		deps.DecisionLog,
		triage.WithDryRun(cfg.DryRun),
	)

	return deps, cleanup, nil
}

func newLLMClient(ctx context.Context, cfg *config.Config) (*llm.Client, error) {
	apiKey := cfg.LLMAPIKey()
	if apiKey == "" {
		logger.WithField("provider", cfg.LLMProvider).Warn("no LLM API key configured, classifying with rules only")
		return nil, nil
	}

	var backend llm.Backend
	switch cfg.LLMProvider {
	case config.LLMProviderGemini:
		gemini, err := llm.NewGeminiBackend(ctx, apiKey, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMTimeout())
		if err != nil {
			return nil, apperr.ExternalError("gemini", err)
		}
		backend = gemini
	case config.LLMProviderOpenAI:
		backend = llm.NewOpenAIBackend(llm.OpenAIConfig{
			APIKey:      apiKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout(),
		})
	default:
		backend = llm.NewOpenAIBackend(llm.OpenAIConfig{
			APIKey:      apiKey,
			BaseURL:     llm.DefaultGroqBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout(),
		})
	}

	logger.WithField("provider", backend.Name()).Info("LLM backend ready")
	return llm.NewClient(backend, cfg.LLMTimeout()), nil
}

func newMailbox(ctx context.Context, cfg *config.Config) (out.MailboxPort, error) {
	if cfg.MailProvider == config.MailProviderIMAP {
		return provider.NewIMAPAdapter(provider.IMAPConfig{
			IMAPAddr:    cfg.IMAPAddr,
			SMTPAddr:    cfg.SMTPAddr,
			Username:    cfg.IMAPUsername,
			Password:    cfg.IMAPPassword,
			From:        cfg.IMAPFrom,
			Mailbox:     cfg.IMAPMailbox,
			MaxMessages: cfg.MaxMessages,
		})
	}

	oauthCfg, err := provider.LoadOAuthConfig(cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, err
	}
	ts, err := provider.TokenSource(ctx, oauthCfg, provider.NewTokenStore(cfg.GoogleTokenFile))
	if err != nil {
		return nil, err
	}
	return provider.NewGmailAdapter(ctx, &provider.GmailConfig{
		TokenSource: ts,
		MaxMessages: cfg.MaxMessages,
	})
}

func newNotifier(cfg *config.Config) out.AlertNotifier {
	var notifiers notify.Multi
	if cfg.TeamsWebhookURL != "" {
		notifiers = append(notifiers, notify.NewTeamsNotifier(cfg.TeamsWebhookURL, cfg.WebhookTimeout()))
	}
	if cfg.SendGridAPIKey != "" {
		notifiers = append(notifiers, notify.NewSendGridNotifier(notify.SendGridConfig{
			APIKey:   cfg.SendGridAPIKey,
			FromName: cfg.AlertEmailFromName,
			FromAddr: cfg.AlertEmailFrom,
			To:       cfg.AlertEmailTo,
		}))
	}

	switch len(notifiers) {
	case 0:
		logger.Warn("no alert channel configured (TEAMS_WEBHOOK_URL, SENDGRID_API_KEY), high priority alerts will be skipped")
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

// newDecisionLogs always includes the workbook; SQL and MongoDB mirrors are
// added when configured.
func newDecisionLogs(ctx context.Context, cfg *config.Config) (*multiLog, error) {
	logs := &multiLog{sinks: []out.DecisionLog{sheet.NewExcelLog(cfg.ExcelPath, cfg.ExcelSheet)}}

	if cfg.LogDBDriver != "" {
		db, err := database.OpenSQL(ctx, cfg.SQLDriver(), cfg.LogDBURL, nil)
		if err != nil {
			return nil, apperr.DatabaseError("connect "+cfg.SQLDriver(), err)
		}
		sqlLog, err := persistence.NewSQLLog(ctx, db, cfg.LogDBTable)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logs.sinks = append(logs.sinks, sqlLog)
		logger.WithField("driver", cfg.SQLDriver()).Info("SQL decision log enabled")
	}

	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			_ = logs.Close()
			return nil, apperr.DatabaseError("connect mongodb", err)
		}
		mongoLog := mongodb.NewDecisionLogAdapter(client, cfg.MongoDBName, cfg.MongoCollection)
		if err := mongoLog.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("failed to create MongoDB indexes")
		}
		logs.sinks = append(logs.sinks, mongoLog)
		logger.Info("MongoDB decision log enabled")
	}

	return logs, nil
}

func newPipeline(rules *config.Rules, client *llm.Client) (*triage.Pipeline, error) {
	system, err := classification.NewSystemFilter(rules.SystemPatterns)
	if err != nil {
		return nil, apperr.ConfigError("system_patterns", err.Error())
	}
	ruleClassifier, err := classification.NewRuleClassifier(rules.CategoryRules)
	if err != nil {
		return nil, apperr.ConfigError("category_rules", err.Error())
	}

	// Keep the interfaces nil when there is no client.
	var (
		classOracle out.ClassificationOracle
		replyOracle out.ReplyOracle
	)
	if client != nil {
		classOracle = client
		replyOracle = client
	}

	composer := reply.NewComposer(replyOracle,
		reply.WithTemplates(rules.Templates),
		reply.WithMinLength(rules.MinReplyLength),
	)
	return triage.NewPipeline(system, ruleClassifier, classification.NewModelClassifier(classOracle), composer), nil
}

// multiLog appends every batch to each sink. All sinks are tried; any
// failure fails the append.
type multiLog struct {
	sinks []out.DecisionLog
}

func (m *multiLog) Append(ctx context.Context, records []domain.LogRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// categoryCounter is implemented by sinks that can query past decisions.
type categoryCounter interface {
	CountByCategory(ctx context.Context) (map[domain.Category]int, error)
}

// CountByCategory answers from the first queryable mirror. It returns nil
// when only the workbook is configured.
func (m *multiLog) CountByCategory(ctx context.Context) (map[domain.Category]int, error) {
	for _, s := range m.sinks {
		if c, ok := s.(categoryCounter); ok {
			return c.CountByCategory(ctx)
		}
	}
	return nil, nil
}

func (m *multiLog) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
