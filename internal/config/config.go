package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Practice-management API
	PracticeAPIBaseURL     string
	BookingAPIURL          string
	AppointmentLookupURL   string
	PracticeName           string
	PracticeVendorName     string
	BotID                  string
	PracticeAPITimeout     time.Duration
	PracticeBreakerEnabled bool

	// Wizard behaviour
	MaxRangeDays        int
	AvailableDateWindow int
	OTPTestMode         bool
	OTPBypassCodes      []string
	FallbackSessionID   string

	// Session storage
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	SessionTTL      time.Duration
	SessionHashKey  string
	SessionBlockKey string
	CookieSecure    bool

	// Booking audit trail
	DatabaseURL string

	// HTTP edge
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		PracticeAPIBaseURL:     getEnv("PRACTICE_API_BASE_URL", "https://welcomeformchatbotapi.maximeyes.com/"),
		BookingAPIURL:          getEnv("BOOKING_API_URL", ""),
		AppointmentLookupURL:   getEnv("APPOINTMENT_LOOKUP_URL", ""),
		PracticeName:           getEnv("PRACTICE_NAME", ""),
		PracticeVendorName:     getEnv("PRACTICE_VENDOR_NAME", "WelcomeformAPI"),
		BotID:                  getEnv("BOT_ID", ""),
		PracticeAPITimeout:     getEnvAsDuration("PRACTICE_API_TIMEOUT", 30*time.Second),
		PracticeBreakerEnabled: getEnvAsBool("PRACTICE_BREAKER_ENABLED", true),

		MaxRangeDays:        getEnvAsInt("MAX_RANGE_DAYS", 7),
		AvailableDateWindow: getEnvAsInt("AVAILABLE_DATE_WINDOW_DAYS", 60),
		OTPTestMode:         getEnvAsBool("OTP_TEST_MODE", false),
		OTPBypassCodes:      getEnvAsList("OTP_BYPASS_CODES", []string{"1234", "9753"}),
		FallbackSessionID:   getEnv("FALLBACK_SESSION_ID", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		SessionTTL:      getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SessionHashKey:  getEnv("SESSION_HASH_KEY", ""),
		SessionBlockKey: getEnv("SESSION_BLOCK_KEY", ""),
		CookieSecure:    getEnvAsBool("COOKIE_SECURE", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// LoadDotEnv loads a .env file into the process environment when present.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
