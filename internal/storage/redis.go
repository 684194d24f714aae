package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"fablecast/server/internal/config"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// Per-episode operation lease. The orchestrator holds the lease for the
// duration of a start or choice so a second instance cannot run a concurrent
// operation on the same episode.
const (
	leaseKeyPrefix    = "episode:lease"
	snapshotKeyPrefix = "episode:window"
	snapshotTTL       = 24 * time.Hour
)

// AcquireLease takes the episode's operation lease. Returns false when
// another operation already holds it.
func (s *RedisStore) AcquireLease(ctx context.Context, episodeID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:%s", leaseKeyPrefix, episodeID)
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return ok, nil
}

// ReleaseLease drops the episode's operation lease.
func (s *RedisStore) ReleaseLease(ctx context.Context, episodeID string) error {
	key := fmt.Sprintf("%s:%s", leaseKeyPrefix, episodeID)
	return s.client.Del(ctx, key).Err()
}

// SaveWindowSnapshot caches the rolling-window snapshot so a restarted or
// sibling instance can rehydrate the session without regenerating.
func (s *RedisStore) SaveWindowSnapshot(ctx context.Context, episodeID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal window snapshot: %w", err)
	}
	key := fmt.Sprintf("%s:%s", snapshotKeyPrefix, episodeID)
	return s.client.Set(ctx, key, data, snapshotTTL).Err()
}

// LoadWindowSnapshot reads the cached snapshot into out. Returns false when
// no snapshot exists.
func (s *RedisStore) LoadWindowSnapshot(ctx context.Context, episodeID string, out interface{}) (bool, error) {
	key := fmt.Sprintf("%s:%s", snapshotKeyPrefix, episodeID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal window snapshot: %w", err)
	}
	return true, nil
}

// DeleteWindowSnapshot removes the cached snapshot, used when an episode
// leaves the active state.
func (s *RedisStore) DeleteWindowSnapshot(ctx context.Context, episodeID string) error {
	key := fmt.Sprintf("%s:%s", snapshotKeyPrefix, episodeID)
	return s.client.Del(ctx, key).Err()
}
