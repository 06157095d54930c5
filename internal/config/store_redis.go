package config

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists the whole StandardConfig table as a single Redis
// hash, so a second pod picking up the same HA deployment boots with
// the last-committed configuration rather than the OCPP defaults.
// Grounded on internal/storage/redis_storage.go's client wiring, same
// idiom as auth.RedisAuthStore.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "ocpp:config:values"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) SaveAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return s.client.HSet(ctx, s.key, fields).Err()
}

func (s *RedisStore) LoadAll(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.key).Result()
}
