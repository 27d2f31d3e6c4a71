// Package cli implements wizardctl, the operator tool for checking practice
// connectivity and the booking audit trail without going through the wizard.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wolfman30/medspa-booking-wizard/internal/app/bootstrap"
	"github.com/wolfman30/medspa-booking-wizard/internal/audit"
	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/internal/wizard"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// AuditReader is the read side of the booking audit trail.
type AuditReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]wizard.BookingAttempt, error)
	OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error)
}

// Env carries the collaborators commands run against. Nil fields are built
// from Config.
type Env struct {
	Config *appconfig.Config
	Logger *logging.Logger
	API    practice.API
	// OpenAudit returns the audit reader and a func releasing it.
	OpenAudit func(ctx context.Context) (AuditReader, func(), error)
	// OpenMigrator returns the schema migrator. The caller closes it.
	OpenMigrator func(ctx context.Context) (Migrator, error)
	Now          func() time.Time
}

func (e *Env) defaults() {
	if e.Config == nil {
		e.Config = appconfig.Load()
	}
	if e.Logger == nil {
		e.Logger = logging.New("error")
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.API == nil {
		e.API = bootstrap.BuildPracticeClient(e.Config, nil, e.Logger)
	}
	if e.OpenAudit == nil {
		e.OpenAudit = func(ctx context.Context) (AuditReader, func(), error) {
			dsn := strings.TrimSpace(e.Config.DatabaseURL)
			if dsn == "" {
				return nil, nil, fmt.Errorf("DATABASE_URL is required")
			}
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return nil, nil, err
			}
			return audit.NewRepository(pool), pool.Close, nil
		}
	}
	if e.OpenMigrator == nil {
		e.OpenMigrator = func(ctx context.Context) (Migrator, error) {
			return OpenMigrator(ctx, e.Config.DatabaseURL)
		}
	}
}

// session bootstraps a throwaway session for one command.
func (e *Env) session(ctx context.Context) (*session.Session, error) {
	store := session.NewMemoryStore(5 * time.Minute)
	boot := session.NewBootstrapper(e.API, store, session.BootstrapConfig{
		BotID:      e.Config.BotID,
		Practice:   e.Config.PracticeName,
		VendorName: e.Config.PracticeVendorName,
	}, e.Logger)
	return boot.Bootstrap(ctx)
}

// NewRoot builds the wizardctl command tree.
func NewRoot(env *Env) *cobra.Command {
	var (
		timeout time.Duration
		cancel  context.CancelFunc
	)
	cmd := &cobra.Command{
		Use:           "wizardctl",
		Short:         "Booking wizard operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.defaults()
			var ctx context.Context
			ctx, cancel = context.WithTimeout(cmd.Context(), timeout)
			cmd.SetContext(ctx)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cancel != nil {
				cancel()
			}
		},
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "overall command timeout")
	cmd.AddCommand(newBootstrapCmd(env))
	cmd.AddCommand(newCatalogCmd(env))
	cmd.AddCommand(newCalendarCmd(env))
	cmd.AddCommand(newSlotsCmd(env))
	cmd.AddCommand(newAuditCmd(env))
	cmd.AddCommand(newMigrateCmd(env))
	return cmd
}
