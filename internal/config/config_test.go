package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxWorkers != 5 {
		t.Errorf("expected default MaxWorkers=5, got %d", cfg.MaxWorkers)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("expected default CacheTTL=24h, got %v", cfg.CacheTTL)
	}
	if cfg.DefaultCategory != "general" {
		t.Errorf("expected default category 'general', got %q", cfg.DefaultCategory)
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_WORKERS", "12")
	t.Setenv("NEWS_CATEGORIES", "tech, world ,sport")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxWorkers != 12 {
		t.Errorf("expected overridden MaxWorkers=12, got %d", cfg.MaxWorkers)
	}
	if len(cfg.NewsCategories) != 3 || cfg.NewsCategories[0] != "tech" {
		t.Errorf("expected parsed/trimmed categories, got %v", cfg.NewsCategories)
	}
	if !cfg.Debug {
		t.Errorf("expected Debug=true")
	}
}

func TestLoadTelegramChatIDNewsFallsBackToTelegramChatID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TELEGRAM_CHAT_ID", "12345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TelegramChatIDNews != "12345" {
		t.Errorf("expected TelegramChatIDNews to fall back to TelegramChatID, got %q", cfg.TelegramChatIDNews)
	}
}

func TestLoadFailsWithoutRequiredKeys(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when required keys are missing")
	}
}

func TestValidateRejectsNonPositiveRPS(t *testing.T) {
	cfg := &Config{DatabaseURL: "x", GeminiAPIKey: "y", RPS: 0, MaxWorkers: 1}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for non-positive RPS")
	}
}

func TestValidateRejectsNonPositiveMaxWorkers(t *testing.T) {
	cfg := &Config{DatabaseURL: "x", GeminiAPIKey: "y", RPS: 1, MaxWorkers: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for non-positive MaxWorkers")
	}
}
