// Package config loads the application configuration from environment
// variables, following the same getEnvOrDefault/getEnvIntOrDefault shape
// as the rest of the ambient stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration for the aggregation pipeline.
type Config struct {
	// Persistence
	DatabaseURL string

	// AI / LLM
	GeminiAPIEndpoint    string
	GeminiAPIKey         string
	RPS                  float64
	SummarizationModel   string
	CategorizationModel  string
	DigestModel          string

	// Output
	TelegramToken      string
	TelegramChatID     string
	TelegramChatIDNews string
	TelegraphToken     string

	// Pipeline resource caps
	MaxWorkers              int
	BrowserConcurrency      int
	CacheTTL                time.Duration
	CacheDir                string
	MaxContentLength        int
	MinContentLength        int
	RenderTimeoutFirstMS    int64
	RenderTotalBudgetMS     int64

	// Taxonomy
	NewsCategories  []string
	DefaultCategory string

	// Scheduler
	SchedulerCheckIntervalSeconds int64
	SchedulerStuckHours           int64
	SchedulerTaskTimeoutSeconds   int64

	// Admin auth (external concern; passed through untouched)
	AdminUsername string
	AdminPassword string
	JWTSecret     string

	// App-wide
	Debug          bool
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

// Load builds a Config from the environment, applying defaults and then
// validating required keys.
func Load() (*Config, error) {
	cfg := &Config{
		GeminiAPIEndpoint:             "https://generativelanguage.googleapis.com",
		RPS:                           1.0,
		SummarizationModel:            "gemini-1.5-flash",
		CategorizationModel:           "gemini-1.5-flash",
		DigestModel:                   "gemini-1.5-flash",
		MaxWorkers:                    5,
		BrowserConcurrency:            2,
		CacheTTL:                      24 * time.Hour,
		CacheDir:                      "cache",
		MaxContentLength:              20000,
		MinContentLength:              200,
		RenderTimeoutFirstMS:          8000,
		RenderTotalBudgetMS:           30000,
		DefaultCategory:               "general",
		SchedulerCheckIntervalSeconds: 60,
		SchedulerStuckHours:           2,
		SchedulerTaskTimeoutSeconds:   1800,
		RequestTimeout:                30 * time.Second,
		RetryAttempts:                 3,
		RetryDelay:                    5 * time.Second,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.TelegramChatIDNews = getEnvOrDefault("TELEGRAM_CHAT_ID_NEWS", cfg.TelegramChatID)
	cfg.TelegraphToken = os.Getenv("TELEGRAPH_ACCESS_TOKEN")
	cfg.AdminUsername = os.Getenv("ADMIN_USERNAME")
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	cfg.GeminiAPIEndpoint = getEnvOrDefault("GEMINI_API_ENDPOINT", cfg.GeminiAPIEndpoint)
	cfg.SummarizationModel = getEnvOrDefault("SUMMARIZATION_MODEL", cfg.SummarizationModel)
	cfg.CategorizationModel = getEnvOrDefault("CATEGORIZATION_MODEL", cfg.CategorizationModel)
	cfg.DigestModel = getEnvOrDefault("DIGEST_MODEL", cfg.DigestModel)
	cfg.CacheDir = getEnvOrDefault("CACHE_DIR", cfg.CacheDir)
	cfg.DefaultCategory = getEnvOrDefault("DEFAULT_CATEGORY", cfg.DefaultCategory)

	cfg.RPS = getEnvFloatOrDefault("RPS", cfg.RPS)
	cfg.MaxWorkers = getEnvIntOrDefault("MAX_WORKERS", cfg.MaxWorkers)
	cfg.BrowserConcurrency = getEnvIntOrDefault("BROWSER_CONCURRENCY", cfg.BrowserConcurrency)
	cfg.MaxContentLength = getEnvIntOrDefault("MAX_CONTENT_LENGTH", cfg.MaxContentLength)
	cfg.MinContentLength = getEnvIntOrDefault("MIN_CONTENT_LENGTH", cfg.MinContentLength)
	cfg.RenderTimeoutFirstMS = getEnvInt64OrDefault("PLAYWRIGHT_TIMEOUT_FIRST_MS", cfg.RenderTimeoutFirstMS)
	cfg.RenderTotalBudgetMS = getEnvInt64OrDefault("PLAYWRIGHT_TOTAL_BUDGET_MS", cfg.RenderTotalBudgetMS)

	if ttl := getEnvIntOrDefault("CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = time.Duration(ttl) * time.Second
	}

	if v := os.Getenv("NEWS_CATEGORIES"); v != "" {
		parts := strings.Split(v, ",")
		cats := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cats = append(cats, p)
			}
		}
		cfg.NewsCategories = cats
	}

	cfg.SchedulerCheckIntervalSeconds = getEnvInt64OrDefault("SCHEDULER_CHECK_INTERVAL_SECONDS", cfg.SchedulerCheckIntervalSeconds)
	cfg.SchedulerStuckHours = getEnvInt64OrDefault("SCHEDULER_STUCK_HOURS", cfg.SchedulerStuckHours)
	cfg.SchedulerTaskTimeoutSeconds = getEnvInt64OrDefault("SCHEDULER_TASK_TIMEOUT_SECONDS", cfg.SchedulerTaskTimeoutSeconds)

	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}
	if v := getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts); v > 0 {
		cfg.RetryAttempts = v
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// Validate checks the keys required for the pipeline to start at all.
// Output-adapter credentials (Telegram/Telegraph) are validated lazily by
// those adapters since a deployment may run with only one enabled.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.RPS <= 0 {
		return fmt.Errorf("RPS must be positive")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive")
	}
	return nil
}
