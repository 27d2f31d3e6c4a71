package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "s1", map[string][]byte{
		KeyPracticeToken: []byte("tok"),
		KeyFormData:      []byte(`{"firstName":"Jane"}`),
	}))

	got, err := store.Get(ctx, "s1", KeyPracticeToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", string(got))

	_, err = store.Get(ctx, "s1", KeySlot)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "other", KeyPracticeToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "s1", DraftKeys...))
	_, err = store.Get(ctx, "s1", KeyFormData)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "s1", KeyPracticeToken)
	require.NoError(t, err, "bootstrap keys survive draft deletion")

	require.NoError(t, store.Purge(ctx, "s1"))
	_, err = store.Get(ctx, "s1", KeyPracticeToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore(time.Minute))
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setupTestRedis(t)
	storeContract(t, NewRedisStore(client, time.Minute))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "s1", map[string][]byte{KeyBotID: []byte("bot")}))
	now = now.Add(45 * time.Second)
	require.NoError(t, store.Put(ctx, "s1", map[string][]byte{KeyStep: []byte("otp")}))

	now = now.Add(30 * time.Second)
	_, err := store.Get(ctx, "s1", KeyBotID)
	require.NoError(t, err, "writes refresh the whole namespace")

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "s1", KeyBotID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "stale", map[string][]byte{KeyBotID: []byte("bot")}))
	now = now.Add(50 * time.Second)
	require.NoError(t, store.Put(ctx, "fresh", map[string][]byte{KeyBotID: []byte("bot")}))
	store.data["emptied"] = map[string]memoryEntry{}
	require.Equal(t, 3, store.Len())

	now = now.Add(20 * time.Second)
	assert.Equal(t, 2, store.SweepExpired())
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "fresh", KeyBotID)
	require.NoError(t, err)
	_, err = store.Get(ctx, "stale", KeyBotID)
	assert.ErrorIs(t, err, ErrNotFound)

	now = now.Add(time.Minute)
	assert.Equal(t, 1, store.SweepExpired())
	assert.Zero(t, store.Len())
}

func TestRedisStore_KeysAndTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "abc", map[string][]byte{KeyBotID: []byte("bot-1")}))
	assert.True(t, mr.Exists("wizard:abc:botId"))
	assert.Equal(t, 10*time.Minute, mr.TTL("wizard:abc:botId"))

	mr.FastForward(6 * time.Minute)
	require.NoError(t, store.Put(ctx, "abc", map[string][]byte{KeyStep: []byte("otp")}))
	assert.Equal(t, 10*time.Minute, mr.TTL("wizard:abc:botId"))

	mr.FastForward(11 * time.Minute)
	_, err := store.Get(ctx, "abc", KeyBotID)
	assert.ErrorIs(t, err, ErrNotFound)
}
