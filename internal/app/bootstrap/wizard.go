package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-booking-wizard/internal/api/router"
	"github.com/wolfman30/medspa-booking-wizard/internal/audit"
	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
	httpmiddleware "github.com/wolfman30/medspa-booking-wizard/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-wizard/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/internal/wizard"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// Runtime holds everything the API server needs to serve the wizard.
type Runtime struct {
	Practice *practice.Client
	Store    session.Store
	Registry *wizard.Registry
	Cookies  *httpmiddleware.SessionCookies
	Metrics  *metrics.WizardMetrics
	Audit    *audit.Repository
	Redis    *redis.Client
	Pool     *pgxpool.Pool
}

// RuntimeOptions overrides pieces of the runtime, mainly for tests.
type RuntimeOptions struct {
	// API replaces the HTTP practice client.
	API        practice.API
	Registerer prometheus.Registerer
}

// BuildRuntime wires the wizard from configuration. Redis and Postgres are
// optional: without Redis sessions stay in memory, without Postgres booking
// attempts are not recorded.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts RuntimeOptions) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt := &Runtime{Metrics: metrics.NewWizardMetrics(opts.Registerer)}
	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
	rt.Store = BuildSessionStore(rt.Redis, cfg, logger)

	var recorder wizard.AttemptRecorder
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		rt.Pool = pool
		rt.Audit = audit.NewRepository(pool)
		recorder = rt.Audit
		logger.Info("booking audit trail enabled")
	}

	api := opts.API
	if api == nil {
		rt.Practice = BuildPracticeClient(cfg, rt.Metrics, logger)
		api = rt.Practice
	}

	if cfg.OTPTestMode && cfg.IsProduction() {
		logger.Warn("otp test mode is enabled in production")
	}

	boot := session.NewBootstrapper(api, rt.Store, session.BootstrapConfig{
		BotID:      cfg.BotID,
		Practice:   cfg.PracticeName,
		VendorName: cfg.PracticeVendorName,
	}, logger)
	deps := wizard.Deps{
		API:       api,
		Store:     rt.Store,
		OTP:       wizard.NewOTPVerifier(api, cfg.OTPTestMode, cfg.OTPBypassCodes, logger),
		Assembler: wizard.NewAssembler(api, recorder, logger),
		Metrics:   rt.Metrics,
		Logger:    logger,
	}
	rt.Registry = wizard.NewRegistry(session.NewManager(boot, rt.Store), deps, wizard.Config{
		MaxRangeDays:        cfg.MaxRangeDays,
		AvailableDateWindow: cfg.AvailableDateWindow,
		OTPTestMode:         cfg.OTPTestMode,
		FallbackSessionID:   cfg.FallbackSessionID,
	})

	if strings.TrimSpace(cfg.SessionHashKey) == "" {
		logger.Warn("SESSION_HASH_KEY not set; session cookies will not survive a restart")
	}
	rt.Cookies = httpmiddleware.NewSessionCookies(
		[]byte(cfg.SessionHashKey),
		[]byte(cfg.SessionBlockKey),
		cfg.CookieSecure,
		cfg.SessionTTL,
	)
	return rt, nil
}

// HealthChecks returns a probe per configured backing service.
func (rt *Runtime) HealthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	if rt.Pool != nil {
		checks["postgres"] = rt.Pool.Ping
	}
	return checks
}

// Close releases connections.
func (rt *Runtime) Close() {
	if rt.Pool != nil {
		rt.Pool.Close()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}
