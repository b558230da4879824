// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables (.env
// file) and updating configuration from the MetaStore settings table.
// Settings database values take precedence over environment variables, the
// same two-stage design the teacher repo uses for its broker credentials.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Stores
	ResearchDSN string // Postgres DSN for ResearchStore (pgvector-enabled)
	MetaDBPath  string // sqlite file path for MetaStore
	RootDir     string // application root; scheduler heartbeat/lock files live under <RootDir>/logs

	// External services
	LLMBaseURL        string
	LLMDefaultModel   string
	SearchBaseURL     string
	ArchiveBaseURL    string
	AntiBotProxyURL   string
	FinanceAPIBaseURL string
	FinanceAPIKey     string
	CongressScraperBinaryPath string

	// Behavior knobs
	AutoBlacklistThreshold int
	DisableScheduler       bool

	// Cloud backup (R2BackupService), optional: when R2AccountID is empty the
	// backup job is skipped entirely rather than failing on every run.
	R2AccountID        string
	R2AccessKeyID      string
	R2SecretAccessKey  string
	R2BucketName       string
	BackupRetentionDays int

	LogLevel string
	Port     int
	DevMode  bool
}

// Load reads configuration from environment variables.
//
// Order: 1) .env file (if present) 2) environment variables with defaults.
// Settings-DB overrides are applied later via UpdateFromSettings, once the
// MetaStore is open (mirrors the teacher's config.Load / UpdateFromSettings split).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ResearchDSN:            getEnv("RESEARCH_DATABASE_URL", "postgres://localhost:5432/research?sslmode=disable"),
		MetaDBPath:             getEnv("META_DB_PATH", "./data/meta.db"),
		RootDir:                getEnv("ROOT_DIR", "."),
		LLMBaseURL:             getEnv("LLM_BASE_URL", "http://localhost:11434"),
		LLMDefaultModel:        getEnv("LLM_DEFAULT_MODEL", "llama3.1"),
		SearchBaseURL:          getEnv("SEARCH_BASE_URL", ""),
		ArchiveBaseURL:         getEnv("ARCHIVE_BASE_URL", "https://archive.org"),
		AntiBotProxyURL:        getEnv("ANTIBOT_PROXY_URL", ""),
		FinanceAPIBaseURL:      getEnv("FINANCE_API_BASE_URL", ""),
		FinanceAPIKey:          getEnv("FINANCE_API_KEY", ""),
		CongressScraperBinaryPath: getEnv("CONGRESS_SCRAPER_BIN", "./bin/congress-scraper"),
		AutoBlacklistThreshold: getEnvAsInt("AUTO_BLACKLIST_THRESHOLD", 4),
		DisableScheduler:       getEnvAsBool("DISABLE_SCHEDULER", false),
		R2AccountID:            getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:          getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey:      getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:           getEnv("R2_BUCKET_NAME", ""),
		BackupRetentionDays:    getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		Port:                   getEnvAsInt("GO_PORT", 8090),
		DevMode:                getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SettingsReader is the minimal surface config needs from the MetaStore
// settings table. Satisfied by *store.SettingsStore.
type SettingsReader interface {
	Get(key string) (*string, error)
}

// UpdateFromSettings updates configuration from the MetaStore settings table.
// Settings database values take precedence over environment variables; an
// empty settings value leaves the environment-derived value untouched.
func (c *Config) UpdateFromSettings(settings SettingsReader) error {
	apply := func(key string, dst *string) error {
		v, err := settings.Get(key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", key, err)
		}
		if v != nil && *v != "" {
			*dst = *v
		}
		return nil
	}

	if err := apply("finance_api_key", &c.FinanceAPIKey); err != nil {
		return err
	}
	if err := apply("llm_default_model", &c.LLMDefaultModel); err != nil {
		return err
	}
	if err := apply("search_base_url", &c.SearchBaseURL); err != nil {
		return err
	}

	if v, err := settings.Get("auto_blacklist_threshold"); err != nil {
		return fmt.Errorf("failed to get auto_blacklist_threshold from settings: %w", err)
	} else if v != nil && *v != "" {
		if n, convErr := strconv.Atoi(*v); convErr == nil {
			c.AutoBlacklistThreshold = n
		}
	}

	return nil
}

// Validate checks required configuration is present.
func (c *Config) Validate() error {
	if c.ResearchDSN == "" {
		return fmt.Errorf("RESEARCH_DATABASE_URL is required")
	}
	if c.MetaDBPath == "" {
		return fmt.Errorf("META_DB_PATH is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
