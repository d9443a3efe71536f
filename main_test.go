package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/service/triage"
	"mailtriage/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("MAX_MESSAGES", "50")
	t.Setenv("DRY_RUN", "false")

	root := newRootCmd()
	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, runCmd.ParseFlags([]string{"--dry-run", "--max", "5", "--rules", "rules.yaml", "--log-level", "debug", "--log-format", "CONSOLE"}))

	var flags cliFlags
	flags.dryRun, _ = runCmd.Flags().GetBool("dry-run")
	flags.max, _ = runCmd.Flags().GetInt("max")
	flags.rulesFile, _ = runCmd.Flags().GetString("rules")
	flags.logLevel, _ = runCmd.Flags().GetString("log-level")
	flags.logFormat, _ = runCmd.Flags().GetString("log-format")

	cfg, err := loadConfig(runCmd, &flags)
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 5, cfg.MaxMessages)
	assert.Equal(t, "rules.yaml", cfg.RulesFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("run: %w", apperr.AuthRequired("gmail", nil))))
	assert.Equal(t, 1, exitCode(apperr.ConfigError("MAX_MESSAGES", "must be positive")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestReportPrintsSummaryOfFailedRun(t *testing.T) {
	var buf bytes.Buffer
	err := report(&buf, &triage.RunSummary{Fetched: 2, RepliesSent: 1, AlertsSent: 1}, errors.New("append decision log: disk full"))

	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, buf.String(), "Replies sent: 1 (failed 0)")
	assert.Contains(t, buf.String(), "Alerts sent:  1 (failed 0)")

	buf.Reset()
	assert.ErrorContains(t, report(&buf, nil, errors.New("fetch unread")), "fetch unread")
	assert.Empty(t, buf.String())
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &triage.RunSummary{
		Fetched: 3,
		ByCategory: map[domain.Category]int{
			domain.CategorySystem:  1,
			domain.CategoryInquiry: 2,
		},
		RepliesSent: 1,
		DryRun:      true,
		Duration:    1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "Processed 3 unread emails in 1.5s (dry run)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Inquiry")), bytes.Index(buf.Bytes(), []byte("System")))
	assert.Contains(t, out, "Replies sent: 1 (failed 0)")

	buf.Reset()
	printSummary(&buf, &triage.RunSummary{})
	assert.Equal(t, "No unread emails found.\n", buf.String())
}
