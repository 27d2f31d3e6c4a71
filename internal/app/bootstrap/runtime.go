package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore returns the Redis-backed store when a client is
// available, otherwise a process-local store.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) session.Store {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient != nil {
		return session.NewRedisStore(redisClient, cfg.SessionTTL)
	}
	logger.Warn("redis not configured; wizard sessions are kept in memory")
	return session.NewMemoryStore(cfg.SessionTTL)
}

// BuildPracticeClient wires the practice API client with its breaker and
// call observer.
func BuildPracticeClient(cfg *appconfig.Config, observer practice.CallObserver, logger *logging.Logger) *practice.Client {
	opts := practice.Options{
		BaseURL:      cfg.PracticeAPIBaseURL,
		BookingURL:   cfg.BookingAPIURL,
		LookupURL:    cfg.AppointmentLookupURL,
		PracticeName: cfg.PracticeName,
		VendorName:   cfg.PracticeVendorName,
		Timeout:      cfg.PracticeAPITimeout,
		Observer:     observer,
		Logger:       logger,
	}
	if cfg.PracticeBreakerEnabled {
		breaker := practice.DefaultBreakerConfig()
		opts.Breaker = &breaker
	}
	return practice.NewClient(opts)
}
