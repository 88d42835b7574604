package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hatewatch/internal/models"
)

const (
	keyPrefix = "hatewatch:progress:"
	latestKey = keyPrefix + "latest"
)

// DefaultTTL bounds how long a finished batch stays pollable in Redis.
const DefaultTTL = 24 * time.Hour

// RedisStore shares progress between service instances through Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on client. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Save(ctx context.Context, p models.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+p.BatchID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, batchID string) (models.Progress, error) {
	data, err := s.client.Get(ctx, keyPrefix+batchID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Progress{}, ErrNotFound
	}
	if err != nil {
		return models.Progress{}, fmt.Errorf("failed to get progress: %w", err)
	}

	var p models.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Progress{}, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return p, nil
}

func (s *RedisStore) SetLatest(ctx context.Context, batchID string) error {
	if err := s.client.Set(ctx, latestKey, batchID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest batch: %w", err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context) (models.Progress, error) {
	id, err := s.client.Get(ctx, latestKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.IdleProgress(), nil
	}
	if err != nil {
		return models.Progress{}, fmt.Errorf("failed to get latest batch: %w", err)
	}

	p, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return models.IdleProgress(), nil
	}
	return p, err
}
