package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// Session is the explicit authorization context for one wizard run. It is
// read-only after bootstrap.
type Session struct {
	ID          string
	BotID       string
	Practice    string
	Credentials []practice.VendorCredential
	Token       string
	CreatedAt   time.Time
}

// Auth returns the practice API authorization context.
func (s *Session) Auth() practice.Auth {
	return practice.Auth{Token: s.Token, Practice: s.Practice, BotID: s.BotID}
}

// BootstrapError means credential or token resolution failed. It is terminal
// for the session.
type BootstrapError struct {
	Stage string
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed during %s: %v", e.Stage, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// CredentialSource resolves vendor credentials and tokens.
type CredentialSource interface {
	FetchVendorCredentials(ctx context.Context, botID string) ([]practice.VendorCredential, error)
	ExchangeForToken(ctx context.Context, practiceID string, cred practice.VendorCredential) (string, error)
}

// BootstrapConfig identifies the bot and practice a session books against.
type BootstrapConfig struct {
	BotID      string
	Practice   string
	VendorName string
}

// Bootstrapper establishes sessions.
type Bootstrapper struct {
	source CredentialSource
	store  Store
	cfg    BootstrapConfig
	logger *logging.Logger
	newID  func() string
	now    func() time.Time
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(source CredentialSource, store Store, cfg BootstrapConfig, logger *logging.Logger) *Bootstrapper {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.VendorName) == "" {
		cfg.VendorName = "WelcomeformAPI"
	}
	return &Bootstrapper{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Bootstrap fetches credentials, exchanges them for a token and persists the
// result. Any failure yields a *BootstrapError and nothing is retried.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*Session, error) {
	if strings.TrimSpace(b.cfg.BotID) == "" {
		return nil, &BootstrapError{Stage: "config", Err: errors.New("bot id is not configured")}
	}
	if strings.TrimSpace(b.cfg.Practice) == "" {
		return nil, &BootstrapError{Stage: "config", Err: errors.New("practice is not configured")}
	}

	creds, err := b.source.FetchVendorCredentials(ctx, b.cfg.BotID)
	if err != nil {
		return nil, &BootstrapError{Stage: "vendor_credentials", Err: err}
	}
	cred, err := practice.SelectCredential(creds, b.cfg.VendorName, b.cfg.Practice)
	if err != nil {
		return nil, &BootstrapError{Stage: "vendor_credentials", Err: err}
	}
	token, err := b.source.ExchangeForToken(ctx, b.cfg.Practice, cred)
	if err != nil {
		return nil, &BootstrapError{Stage: "token", Err: err}
	}

	sess := &Session{
		ID:          b.newID(),
		BotID:       b.cfg.BotID,
		Practice:    b.cfg.Practice,
		Credentials: creds,
		Token:       token,
		CreatedAt:   b.now().UTC(),
	}
	credJSON, err := json.Marshal(creds)
	if err != nil {
		return nil, &BootstrapError{Stage: "persist", Err: err}
	}
	if err := b.store.Put(ctx, sess.ID, map[string][]byte{
		KeyBotID:             []byte(sess.BotID),
		KeyVendorCredentials: credJSON,
		KeyPracticeToken:     []byte(token),
	}); err != nil {
		return nil, &BootstrapError{Stage: "persist", Err: err}
	}

	b.logger.Info("wizard session bootstrapped", "session_id", sess.ID, "practice", sess.Practice)
	return sess, nil
}
