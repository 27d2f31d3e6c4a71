package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Persisted keys under a wizard session namespace.
const (
	KeyBotID             = "botId"
	KeyVendorCredentials = "vendorCredentials"
	KeyPracticeToken     = "practiceToken"
	KeyFormData          = "appointmentFormData"
	KeySelections        = "appointmentSelections"
	KeyDate              = "appointmentDate"
	KeySlot              = "appointmentSlot"
	KeyStep              = "step"
)

// DraftKeys are cleared after a successful booking.
var DraftKeys = []string{KeyFormData, KeySelections, KeyDate, KeySlot, KeyStep}

// AllKeys lists every key a session may hold.
var AllKeys = []string{KeyBotID, KeyVendorCredentials, KeyPracticeToken, KeyFormData, KeySelections, KeyDate, KeySlot, KeyStep}

// ErrNotFound is returned when a key or session does not exist.
var ErrNotFound = errors.New("session: not found")

// Store persists per-session key/value state. Every write refreshes the TTL
// of the whole session namespace.
type Store interface {
	Put(ctx context.Context, sessionID string, values map[string][]byte) error
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Delete(ctx context.Context, sessionID string, keys ...string) error
	Purge(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryStore is an in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryStore creates an in-memory store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		data: make(map[string]map[string]memoryEntry),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[sessionID]
	if !ok {
		ns = make(map[string]memoryEntry)
		s.data[sessionID] = ns
	}
	expires := s.expiry()
	for k, v := range values {
		ns[k] = memoryEntry{value: append([]byte(nil), v...)}
	}
	for k, e := range ns {
		e.expires = expires
		ns[k] = e
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[sessionID][key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(s.now()) {
		delete(s.data[sessionID], key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data[sessionID], k)
	}
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *MemoryStore) expiry() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

// SweepExpired drops expired entries and empty session namespaces. It returns
// the number of namespaces removed.
func (s *MemoryStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, ns := range s.data {
		for k, e := range ns {
			if e.expired(now) {
				delete(ns, k)
			}
		}
		if len(ns) == 0 {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Len is the number of session namespaces held in memory.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
