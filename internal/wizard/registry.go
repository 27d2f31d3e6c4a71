package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// SessionManager starts, restores and ends sessions.
type SessionManager interface {
	Start(ctx context.Context) (*session.Session, error)
	Load(ctx context.Context, id string) (*session.Session, error)
	End(ctx context.Context, id string) error
}

// Registry keeps one Controller per live session.
type Registry struct {
	mu          sync.Mutex
	sessions    SessionManager
	deps        Deps
	cfg         Config
	controllers map[string]*Controller
	logger      *logging.Logger
}

// NewRegistry creates a Registry. deps.Store must be the store the session
// manager persists into.
func NewRegistry(sessions SessionManager, deps Deps, cfg Config) *Registry {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		sessions:    sessions,
		deps:        deps,
		cfg:         cfg,
		controllers: make(map[string]*Controller),
		logger:      deps.Logger,
	}
}

// Create bootstraps a new session and returns its controller.
func (r *Registry) Create(ctx context.Context) (*Controller, error) {
	sess, err := r.sessions.Start(ctx)
	if err != nil {
		return nil, err
	}
	c := NewController(sess, r.deps, r.cfg)
	c.mu.Lock()
	c.persistLocked(ctx)
	c.mu.Unlock()

	r.mu.Lock()
	r.controllers[sess.ID] = c
	r.mu.Unlock()
	return c, nil
}

// Get returns the controller for id, restoring it from the store when it is
// not in memory. It returns session.ErrNotFound for unknown or expired ids.
func (r *Registry) Get(ctx context.Context, id string) (*Controller, error) {
	r.mu.Lock()
	c, ok := r.controllers[id]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	sess, err := r.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c = NewController(sess, r.deps, r.cfg)
	if err := c.Restore(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.controllers[id]; ok {
		return existing, nil
	}
	r.controllers[id] = c
	r.logger.Info("wizard session restored", "session_id", id, "step", c.step.String())
	return c, nil
}

// End drops the controller and purges the session.
func (r *Registry) End(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.controllers, id)
	r.mu.Unlock()
	return r.sessions.End(ctx, id)
}

// expiringStore is implemented by stores that do not expire keys on their own.
type expiringStore interface {
	SweepExpired() int
}

// Sweep evicts controllers idle longer than maxIdle. Their state stays in the
// store and is restored on the next request. Expired namespaces are dropped
// from stores that need an explicit sweep.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.deps.Now().Add(-maxIdle)
	r.mu.Lock()
	evicted := 0
	for id, c := range r.controllers {
		if c.LastSeen().Before(cutoff) {
			delete(r.controllers, id)
			evicted++
		}
	}
	r.mu.Unlock()

	if es, ok := r.deps.Store.(expiringStore); ok {
		if n := es.SweepExpired(); n > 0 {
			r.logger.Debug("dropped expired session state", "count", n)
		}
	}
	return evicted
}

// Len is the number of in-memory controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(maxIdle); n > 0 {
					r.logger.Debug("evicted idle wizard controllers", "count", n)
				}
			}
		}
	}()
}
