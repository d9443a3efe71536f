package bootstrap

import (
	"context"
	"io"
	"sort"
	"strings"

	"mailtriage/adapter/out/provider"
	"mailtriage/config"
	"mailtriage/core/domain"
	"mailtriage/core/service/triage"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
)

// Run wires dependencies, processes the inbox once and releases everything.
// A failed log append still returns the summary, since replies and alerts
// were already sent.
func Run(ctx context.Context, cfg *config.Config) (*triage.RunSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps, cleanup, err := NewDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.WithFields(map[string]any{
		"mailbox": deps.Mailbox.GetProviderName(),
		"dry_run": cfg.DryRun,
		"max":     cfg.MaxMessages,
	}).Info("starting triage run")

	summary, err := deps.RunService.Run(ctx)
	LogSummary(summary)
	if err == nil {
		if c, ok := deps.DecisionLog.(categoryCounter); ok {
			logTotals(ctx, c)
		}
	}
	return summary, err
}

// Authorize runs the Gmail consent flow and stores the token.
func Authorize(ctx context.Context, cfg *config.Config, w io.Writer) error {
	if cfg.MailProvider != config.MailProviderGmail {
		return apperr.ConfigError("MAIL_PROVIDER", "auth is only needed for gmail")
	}
	oauthCfg, err := provider.LoadOAuthConfig(cfg.GoogleCredentialsFile)
	if err != nil {
		return err
	}
	if _, err := provider.Authorize(ctx, oauthCfg, provider.NewTokenStore(cfg.GoogleTokenFile), w); err != nil {
		return err
	}
	logger.WithField("token_file", cfg.GoogleTokenFile).Info("gmail authorization saved")
	return nil
}

// LogSummary writes one line per run plus the per-category counts.
func LogSummary(s *triage.RunSummary) {
	if s == nil {
		return
	}
	fields := map[string]any{
		"run_id":         s.RunID.String(),
		"fetched":        s.Fetched,
		"replies_sent":   s.RepliesSent,
		"reply_failures": s.ReplyFailures,
		"alerts_sent":    s.AlertsSent,
		"alert_failures": s.AlertFailures,
		"dry_run":        s.DryRun,
	}
	for cat, n := range s.ByCategory {
		fields["category_"+categoryKey(cat)] = n
	}
	for op, stats := range metrics.Default().Snapshot() {
		for k, v := range stats.Fields(op) {
			fields[k] = v
		}
	}
	logger.WithFields(fields).WithDuration(s.Duration).Info("run summary")
}

// logTotals logs the all-time decision counts kept by the SQL or MongoDB
// mirror. Query failures are only warned about.
func logTotals(ctx context.Context, c categoryCounter) {
	counts, err := c.CountByCategory(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to count logged decisions")
		return
	}
	if len(counts) == 0 {
		return
	}
	fields := make(map[string]any, len(counts)+1)
	total := 0
	for cat, n := range counts {
		fields["total_"+categoryKey(cat)] = n
		total += n
	}
	fields["total"] = total
	logger.WithFields(fields).Info("decision log totals")
}

// SortedCategories returns the categories present in counts in display order.
func SortedCategories(counts map[domain.Category]int) []domain.Category {
	order := make(map[domain.Category]int, len(domain.AllCategories))
	for i, c := range domain.AllCategories {
		order[c] = i
	}
	cats := make([]domain.Category, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return order[cats[i]] < order[cats[j]] })
	return cats
}

func categoryKey(c domain.Category) string {
	return strings.ToLower(strings.ReplaceAll(string(c), "-", "_"))
}
