package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps wizard sessions in Redis under wizard:<sessionID>:<key>.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("medspa.internal.session.redis"),
	}
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, values map[string][]byte) error {
	ctx, span := s.tracer.Start(ctx, "session.put")
	defer span.End()
	span.SetAttributes(attribute.Int("session.keys", len(values)))

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, storeKey(sessionID, k), v, s.ttl)
		}
		if s.ttl > 0 {
			for _, k := range AllKeys {
				if _, written := values[k]; !written {
					pipe.Expire(ctx, storeKey(sessionID, k), s.ttl)
				}
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist keys: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.redis.Get(ctx, storeKey(sessionID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, storeKey(sessionID, k))
	}
	if err := s.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("session: failed to delete keys: %w", err)
	}
	return nil
}

func (s *RedisStore) Purge(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, sessionID, AllKeys...)
}

func storeKey(sessionID, key string) string {
	return fmt.Sprintf("wizard:%s:%s", sessionID, key)
}
