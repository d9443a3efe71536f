package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"mailtriage/pkg/apperr"
)

// Provider names.
const (
	LLMProviderGroq   = "groq"
	LLMProviderOpenAI = "openai"
	LLMProviderGemini = "gemini"

	MailProviderGmail = "gmail"
	MailProviderIMAP  = "imap"
)

type Config struct {
	LogLevel  string
	LogFormat string // json | console

	// Run
	DryRun      bool
	MaxMessages int
	// Shortest generated reply accepted; 0 accepts any non-empty reply.
	MinReplyLength int
	RulesFile      string
	// Appended to the system pattern table.
	ExtraSystemPatterns []string

	// LLM
	LLMProvider    string
	GroqAPIKey     string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Mailbox
	MailProvider          string
	GoogleCredentialsFile string
	GoogleTokenFile       string

	// IMAP / SMTP
	IMAPAddr     string
	SMTPAddr     string
	IMAPUsername string
	IMAPPassword string
	IMAPFrom     string
	IMAPMailbox  string

	// Alerts
	TeamsWebhookURL    string
	WebhookTimeoutSec  int
	SendGridAPIKey     string
	AlertEmailFrom     string
	AlertEmailFromName string
	AlertEmailTo       string

	// Decision log
	ExcelPath       string
	ExcelSheet      string
	LogDBDriver     string // "" | pgx | sqlite
	LogDBURL        string
	LogDBTable      string
	MongoDBURL      string
	MongoDBName     string
	MongoCollection string
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		DryRun:         getEnvBool("DRY_RUN", false),
		MaxMessages:    getEnvInt("MAX_MESSAGES", 100),
		MinReplyLength: getEnvInt("MIN_REPLY_LENGTH", 40),
		RulesFile:      getEnv("RULES_FILE", ""),

		ExtraSystemPatterns: getEnvSlice("EXTRA_SYSTEM_PATTERNS", nil),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", LLMProviderGroq)),
		GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		LLMModel:       getEnv("LLM_MODEL", ""),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 30),

		MailProvider:          strings.ToLower(getEnv("MAIL_PROVIDER", MailProviderGmail)),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		GoogleTokenFile:       getEnv("GOOGLE_TOKEN_FILE", "token.json"),

		IMAPAddr:     getEnv("IMAP_ADDR", "imap.gmail.com:993"),
		SMTPAddr:     getEnv("SMTP_ADDR", "smtp.gmail.com:465"),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPFrom:     getEnv("IMAP_FROM", ""),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),

		TeamsWebhookURL:    getEnv("TEAMS_WEBHOOK_URL", ""),
		WebhookTimeoutSec:  getEnvInt("WEBHOOK_TIMEOUT_SEC", 10),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		AlertEmailFrom:     getEnv("ALERT_EMAIL_FROM", ""),
		AlertEmailFromName: getEnv("ALERT_EMAIL_FROM_NAME", "mailtriage"),
		AlertEmailTo:       getEnv("ALERT_EMAIL_TO", ""),

		ExcelPath:       getEnv("EXCEL_PATH", "storage/leads.xlsx"),
		ExcelSheet:      getEnv("EXCEL_SHEET", "Leads"),
		LogDBDriver:     strings.ToLower(getEnv("LOG_DB_DRIVER", "")),
		LogDBURL:        getEnv("LOG_DB_URL", ""),
		LogDBTable:      getEnv("LOG_DB_TABLE", "triage_decisions"),
		MongoDBURL:      getEnv("MONGODB_URL", ""),
		MongoDBName:     getEnv("MONGODB_NAME", "mailtriage"),
		MongoCollection: getEnv("MONGODB_COLLECTION", "triage_decisions"),
	}

	if cfg.MaxMessages <= 0 {
		return nil, apperr.ConfigError("MAX_MESSAGES", "must be positive")
	}
	return cfg, nil
}

// Validate checks that the selected providers have what they need. A missing
// LLM key is allowed; classification then falls back to rules.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case LLMProviderGroq, LLMProviderOpenAI, LLMProviderGemini:
	default:
		return apperr.ConfigError("LLM_PROVIDER", "must be groq, openai or gemini, got "+strconv.Quote(c.LLMProvider))
	}

	switch c.MailProvider {
	case MailProviderGmail:
		if c.GoogleCredentialsFile == "" {
			return apperr.ConfigError("GOOGLE_CREDENTIALS_FILE", "required for gmail")
		}
		if c.GoogleTokenFile == "" {
			return apperr.ConfigError("GOOGLE_TOKEN_FILE", "required for gmail")
		}
	case MailProviderIMAP:
		if c.IMAPUsername == "" {
			return apperr.ConfigError("IMAP_USERNAME", "required for imap")
		}
		if c.IMAPPassword == "" {
			return apperr.ConfigError("IMAP_PASSWORD", "required for imap")
		}
		if c.IMAPAddr == "" || c.SMTPAddr == "" {
			return apperr.ConfigError("IMAP_ADDR", "imap and smtp addresses are required")
		}
	default:
		return apperr.ConfigError("MAIL_PROVIDER", "must be gmail or imap, got "+strconv.Quote(c.MailProvider))
	}

	switch c.LogDBDriver {
	case "":
	case "pgx", "postgres", "sqlite":
		if c.LogDBURL == "" {
			return apperr.ConfigError("LOG_DB_URL", "required when LOG_DB_DRIVER is set")
		}
	default:
		return apperr.ConfigError("LOG_DB_DRIVER", "must be pgx or sqlite, got "+strconv.Quote(c.LogDBDriver))
	}

	if c.SendGridAPIKey != "" && (c.AlertEmailFrom == "" || c.AlertEmailTo == "") {
		return apperr.ConfigError("ALERT_EMAIL_TO", "ALERT_EMAIL_FROM and ALERT_EMAIL_TO are required with SENDGRID_API_KEY")
	}
	if c.MinReplyLength < 0 {
		return apperr.ConfigError("MIN_REPLY_LENGTH", "must not be negative")
	}
	return nil
}

// LLMAPIKey returns the key for the selected provider.
func (c *Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case LLMProviderOpenAI:
		return c.OpenAIAPIKey
	case LLMProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.GroqAPIKey
	}
}

// SQLDriver maps the configured name onto the registered database/sql driver.
func (c *Config) SQLDriver() string {
	if c.LogDBDriver == "postgres" {
		return "pgx"
	}
	return c.LogDBDriver
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return defaultValue
}
