package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mailtriage/config"
	"mailtriage/core/service/triage"
	"mailtriage/internal/bootstrap"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type cliFlags struct {
	dryRun    bool
	rulesFile string
	max       int
	logLevel  string
	logFormat string
}

func main() {
	// Initialize logger early
	logger.Init(logger.Config{Level: logger.LevelInfo, Output: os.Stderr, Service: "mailtriage"})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 when the mailbox must be authorized first, 1 otherwise.
func exitCode(err error) int {
	if apperr.CodeOf(err) == apperr.CodeAuthRequired {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	root := &cobra.Command{
		Use:           "mailtriage",
		Short:         "Classify unread support email, auto-reply, alert and log decisions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (json, console); overrides LOG_FORMAT")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process the inbox once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			summary, err := bootstrap.Run(cmd.Context(), cfg)
			return report(cmd.OutOrStdout(), summary, err)
		},
	}
	runCmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "classify and log only; leave mail unread, send no replies or alerts")
	runCmd.Flags().StringVar(&flags.rulesFile, "rules", "", "YAML file overriding patterns, rules and reply templates")
	runCmd.Flags().IntVar(&flags.max, "max", 0, "maximum number of unread messages to process")

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access and store the OAuth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			return bootstrap.Authorize(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	root.AddCommand(runCmd, authCmd)
	return root
}

// initLogger re-initializes the logger from the loaded configuration.
func initLogger(w io.Writer, cfg *config.Config) {
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Output:  w,
		Service: "mailtriage",
		Console: cfg.LogFormat == "console",
	})
}

// loadConfig reads the environment, applies the flags that were set and
// configures the logger from the result.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		cfg.DryRun = flags.dryRun
	}
	if flags.rulesFile != "" {
		cfg.RulesFile = flags.rulesFile
	}
	if flags.max > 0 {
		cfg.MaxMessages = flags.max
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = strings.ToLower(flags.logFormat)
	}
	initLogger(cmd.ErrOrStderr(), cfg)
	return cfg, nil
}

// report prints whatever the run completed, even when it failed late.
func report(w io.Writer, s *triage.RunSummary, runErr error) error {
	if s != nil {
		printSummary(w, s)
	}
	return runErr
}

func printSummary(w io.Writer, s *triage.RunSummary) {
	if s.Fetched == 0 {
		fmt.Fprintln(w, "No unread emails found.")
		return
	}
	fmt.Fprintf(w, "Processed %d unread emails in %s", s.Fetched, s.Duration.Round(time.Millisecond))
	if s.DryRun {
		fmt.Fprint(w, " (dry run)")
	}
	fmt.Fprintln(w)
	for _, c := range bootstrap.SortedCategories(s.ByCategory) {
		fmt.Fprintf(w, "  %-10s %d\n", c, s.ByCategory[c])
	}
	fmt.Fprintf(w, "Replies sent: %d (failed %d)\n", s.RepliesSent, s.ReplyFailures)
	fmt.Fprintf(w, "Alerts sent:  %d (failed %d)\n", s.AlertsSent, s.AlertFailures)
}
