package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
)

// Manager owns the session lifecycle: start, restore, end.
type Manager struct {
	boot     *Bootstrapper
	store    Store
	practice string
}

// NewManager creates a Manager.
func NewManager(boot *Bootstrapper, store Store) *Manager {
	return &Manager{boot: boot, store: store, practice: boot.cfg.Practice}
}

// Store exposes the backing store.
func (m *Manager) Store() Store { return m.store }

// Start bootstraps a new session.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	return m.boot.Bootstrap(ctx)
}

// Load restores a session from the store. It returns ErrNotFound when the
// token has expired or was never issued.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	token, err := m.store.Get(ctx, id, KeyPracticeToken)
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: id, Practice: m.practice, Token: string(token)}
	if botID, err := m.store.Get(ctx, id, KeyBotID); err == nil {
		sess.BotID = string(botID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	raw, err := m.store.Get(ctx, id, KeyVendorCredentials)
	switch {
	case err == nil:
		var creds []practice.VendorCredential
		if err := json.Unmarshal(raw, &creds); err != nil {
			return nil, fmt.Errorf("session: decode credentials: %w", err)
		}
		sess.Credentials = creds
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return sess, nil
}

// End purges all state of a session.
func (m *Manager) End(ctx context.Context, id string) error {
	return m.store.Purge(ctx, id)
}
