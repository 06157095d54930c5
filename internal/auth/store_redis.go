package auth

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisAuthStore persists listVersion across restarts, grounded on
// internal/storage/redis_storage.go's Redis client wiring (prefix +
// single-key get/set, same go-redis client construction).
type RedisAuthStore struct {
	client *redis.Client
	key    string
}

func NewRedisAuthStore(client *redis.Client, key string) *RedisAuthStore {
	if key == "" {
		key = "ocpp:local_list:version"
	}
	return &RedisAuthStore{client: client, key: key}
}

func (s *RedisAuthStore) SaveLocalListVersion(ctx context.Context, version int) error {
	return s.client.Set(ctx, s.key, version, 0).Err()
}

func (s *RedisAuthStore) LoadLocalListVersion(ctx context.Context) (int, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}
