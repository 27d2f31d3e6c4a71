package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-wizard/internal/session"
)

type fakeSessions struct {
	mu       sync.Mutex
	store    session.Store
	sessions map[string]*session.Session
	next     int
	startErr error
}

func (f *fakeSessions) Start(ctx context.Context) (*session.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	sess := testSession()
	sess.ID = fmt.Sprintf("sess-%d", f.next)
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Load(ctx context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSessions) End(ctx context.Context, id string) error {
	f.mu.Lock()
	delete(f.sessions, id)
	f.mu.Unlock()
	return f.store.Purge(ctx, id)
}

func newRegistryFixture(clock *time.Time) (*Registry, *fakeSessions, *session.MemoryStore) {
	store := session.NewMemoryStore(time.Hour)
	sessions := &fakeSessions{store: store, sessions: make(map[string]*session.Session)}
	deps := Deps{
		API:   newFakeAPI(),
		Store: store,
		Now:   func() time.Time { return *clock },
	}
	return NewRegistry(sessions, deps, Config{}), sessions, store
}

func TestRegistry_CreateAndGet(t *testing.T) {
	clock := fixedNow()
	reg, _, store := newRegistryFixture(&clock)
	ctx := context.Background()

	c, err := reg.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	raw, err := store.Get(ctx, c.Session().ID, session.KeyStep)
	require.NoError(t, err)
	assert.Equal(t, "personal_info", string(raw))

	got, err := reg.Get(ctx, c.Session().ID)
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRegistry_SweepThenRestore(t *testing.T) {
	clock := fixedNow()
	reg, _, _ := newRegistryFixture(&clock)
	ctx := context.Background()

	c, err := reg.Create(ctx)
	require.NoError(t, err)
	_, err = c.SubmitPersonalInfo(ctx, janeDoe())
	require.NoError(t, err)

	assert.Zero(t, reg.Sweep(time.Hour))
	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 1, reg.Sweep(time.Hour))
	assert.Zero(t, reg.Len())

	restored, err := reg.Get(ctx, c.Session().ID)
	require.NoError(t, err)
	assert.NotSame(t, c, restored)
	snap := restored.Snapshot()
	assert.Equal(t, StepOTP, snap.Step)
	assert.Equal(t, "Jane", snap.Draft.FirstName)
}

func TestRegistry_SweepDoesNotWaitOnBusyController(t *testing.T) {
	clock := fixedNow()
	reg, _, _ := newRegistryFixture(&clock)
	api := reg.deps.API.(*fakeAPI)
	ctx := context.Background()

	busy, err := reg.Create(ctx)
	require.NoError(t, err)
	idle, err := reg.Create(ctx)
	require.NoError(t, err)
	_, err = busy.SubmitPersonalInfo(ctx, janeDoe())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	api.validateHook = func() {
		close(entered)
		<-release
	}
	verified := make(chan error, 1)
	go func() {
		_, err := busy.VerifyOTP(ctx, "4821")
		verified <- err
	}()
	<-entered

	swept := make(chan int, 1)
	go func() { swept <- reg.Sweep(time.Hour) }()
	select {
	case n := <-swept:
		assert.Zero(t, n)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("sweep waited on a controller blocked in the practice API")
	}

	got := make(chan *Controller, 1)
	go func() {
		c, _ := reg.Get(ctx, idle.Session().ID)
		got <- c
	}()
	select {
	case c := <-got:
		assert.Same(t, idle, c)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("lookup for another session blocked behind a slow practice call")
	}

	close(release)
	require.NoError(t, <-verified)
	assert.Equal(t, StepAppointmentType, busy.Snapshot().Step)
}

type sweepCountingStore struct {
	*session.MemoryStore
	sweeps int
}

func (s *sweepCountingStore) SweepExpired() int {
	s.sweeps++
	return s.MemoryStore.SweepExpired()
}

func TestRegistry_SweepDrivesStoreExpiry(t *testing.T) {
	clock := fixedNow()
	store := &sweepCountingStore{MemoryStore: session.NewMemoryStore(time.Hour)}
	sessions := &fakeSessions{store: store, sessions: make(map[string]*session.Session)}
	reg := NewRegistry(sessions, Deps{
		API:   newFakeAPI(),
		Store: store,
		Now:   func() time.Time { return clock },
	}, Config{})

	_, err := reg.Create(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reg.Sweep(time.Hour))
	assert.Equal(t, 1, store.sweeps)
	assert.Equal(t, 1, store.Len(), "live namespaces survive the sweep")
}

func TestRegistry_End(t *testing.T) {
	clock := fixedNow()
	reg, _, store := newRegistryFixture(&clock)
	ctx := context.Background()

	c, err := reg.Create(ctx)
	require.NoError(t, err)
	id := c.Session().ID
	require.NoError(t, reg.End(ctx, id))

	assert.Zero(t, reg.Len())
	_, err = store.Get(ctx, id, session.KeyStep)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = reg.Get(ctx, id)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRegistry_CreateFailure(t *testing.T) {
	clock := fixedNow()
	reg, sessions, _ := newRegistryFixture(&clock)
	sessions.startErr = &session.BootstrapError{Stage: "token", Err: errors.New("unauthorized")}

	_, err := reg.Create(context.Background())
	var be *BootstrapError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "token", be.Stage)
	assert.Zero(t, reg.Len())
}
