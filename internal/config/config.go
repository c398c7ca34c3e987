package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Session store backends.
const (
	SessionBackendMemory   = "memory"
	SessionBackendSQLite   = "sqlite"
	SessionBackendPostgres = "postgres"
)

// Activity sinks used by the worker.
const (
	ActivitySinkSheets = "sheets"
	ActivitySinkMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port               string `koanf:"PORT"`
	CookieSecure       bool   `koanf:"COOKIE_SECURE"`
	RateLimitPerMinute int    `koanf:"RATE_LIMIT_PER_MINUTE"`

	// Expense backend API
	APIBaseURL string        `koanf:"API_BASE_URL"`
	APITimeout time.Duration `koanf:"API_TIMEOUT"`

	// Sessions
	SessionBackend         string        `koanf:"SESSION_BACKEND"`
	SessionTTL             time.Duration `koanf:"SESSION_TTL"`
	SessionSecret          string        `koanf:"SESSION_SECRET"`
	SessionCleanupInterval time.Duration `koanf:"SESSION_CLEANUP_INTERVAL"`
	SQLiteDBPath           string        `koanf:"SQLITE_DB_PATH"`
	DatabaseURL            string        `koanf:"DATABASE_URL"`

	// View caching
	UserRefreshInterval time.Duration `koanf:"USER_REFRESH_INTERVAL"`
	MonthCacheTTL       time.Duration `koanf:"MONTH_CACHE_TTL"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`

	// AMQP
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Activity worker
	ActivitySink             string `koanf:"ACTIVITY_SINK"`
	GoogleSpreadsheetID      string `koanf:"GOOGLE_SPREADSHEET_ID"`
	GoogleActivitySheet      string `koanf:"GOOGLE_ACTIVITY_SHEET"`
	GoogleServiceAccountJSON string `koanf:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `koanf:"GOOGLE_SERVICE_ACCOUNT_FILE"`
}

// Defaults returns the configuration used when no environment overrides exist.
func Defaults() Config {
	return Config{
		Port:                   "8081",
		RateLimitPerMinute:     60,
		APIBaseURL:             "http://localhost:8000/api",
		APITimeout:             10 * time.Second,
		SessionBackend:         SessionBackendMemory,
		SessionTTL:             24 * time.Hour,
		SessionCleanupInterval: 10 * time.Minute,
		SQLiteDBPath:           "./data/sessions.db",
		UserRefreshInterval:    15 * time.Minute,
		MonthCacheTTL:          30 * time.Second,
		LogLevel:               "info",
		LogFormat:              "text",
		AMQPExchange:           "expensedash",
		AMQPQueue:              "activity",
		ActivitySink:           ActivitySinkSheets,
		GoogleActivitySheet:    "Activity",
	}
}

// Load reads configuration from the process environment on top of Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.APIBaseURL == "" {
		errors = append(errors, "API base URL cannot be empty")
	} else if u, err := url.Parse(c.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}
	if c.APITimeout <= 0 {
		errors = append(errors, "API timeout must be positive")
	}

	validBackends := []string{SessionBackendMemory, SessionBackendSQLite, SessionBackendPostgres}
	if !slices.Contains(validBackends, c.SessionBackend) {
		errors = append(errors, fmt.Sprintf("invalid session backend '%s': must be one of %v", c.SessionBackend, validBackends))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("session TTL %s is too short: must be at least 1m", c.SessionTTL))
	}
	if c.SessionCleanupInterval <= 0 {
		errors = append(errors, "session cleanup interval must be positive")
	}

	// Persistent stores keep bearer tokens on disk, sealed with the session secret.
	if c.SessionBackend == SessionBackendSQLite || c.SessionBackend == SessionBackendPostgres {
		if len(c.SessionSecret) < 16 {
			errors = append(errors, fmt.Sprintf("SESSION_SECRET must be at least 16 characters when using %s sessions", c.SessionBackend))
		}
	}

	if c.SessionBackend == SessionBackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite sessions")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SessionBackend == SessionBackendPostgres {
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres sessions")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.UserRefreshInterval <= 0 {
		errors = append(errors, "user refresh interval must be positive")
	}
	if c.MonthCacheTTL < 0 {
		errors = append(errors, "month cache TTL cannot be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be positive", c.RateLimitPerMinute))
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings the activity worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	var errors []string

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the activity worker")
	}

	switch c.ActivitySink {
	case ActivitySinkMemory:
	case ActivitySinkSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using the sheets activity sink")
		}
		if c.GoogleActivitySheet == "" {
			errors = append(errors, "Google activity sheet name cannot be empty")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for the sheets activity sink")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid activity sink '%s': must be one of [%s %s]", c.ActivitySink, ActivitySinkSheets, ActivitySinkMemory))
	}

	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
