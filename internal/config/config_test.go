package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "MAX_RANGE_DAYS", "OTP_TEST_MODE", "OTP_BYPASS_CODES", "SESSION_TTL", "PRACTICE_VENDOR_NAME"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MaxRangeDays != 7 {
		t.Fatalf("expected 7 day range cap, got %d", cfg.MaxRangeDays)
	}
	if cfg.OTPTestMode {
		t.Fatalf("expected otp test mode disabled by default")
	}
	if len(cfg.OTPBypassCodes) != 2 || cfg.OTPBypassCodes[0] != "1234" || cfg.OTPBypassCodes[1] != "9753" {
		t.Fatalf("unexpected default bypass codes: %v", cfg.OTPBypassCodes)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.PracticeVendorName != "WelcomeformAPI" {
		t.Fatalf("expected default vendor name, got %s", cfg.PracticeVendorName)
	}
	if !cfg.PracticeBreakerEnabled {
		t.Fatalf("expected breaker enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("PRACTICE_NAME", "burneteyecarepinecone")
	t.Setenv("BOT_ID", "bot-42")
	t.Setenv("OTP_TEST_MODE", "true")
	t.Setenv("OTP_BYPASS_CODES", " 1111 , ,2222")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.PracticeName != "burneteyecarepinecone" || cfg.BotID != "bot-42" {
		t.Fatalf("unexpected practice identifiers: %s %s", cfg.PracticeName, cfg.BotID)
	}
	if !cfg.OTPTestMode {
		t.Fatalf("expected otp test mode")
	}
	if len(cfg.OTPBypassCodes) != 2 || cfg.OTPBypassCodes[1] != "2222" {
		t.Fatalf("unexpected bypass codes: %v", cfg.OTPBypassCodes)
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("expected ttl override, got %s", cfg.SessionTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BOT_ID=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("BOT_ID", "")
	os.Unsetenv("BOT_ID")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := Load().BotID; got != "from-dotenv" {
		t.Fatalf("expected bot id from .env, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
