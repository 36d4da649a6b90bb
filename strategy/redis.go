package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads a JSON strategies document stored under one Redis key.
// Only the configuration travels through Redis; bucket state stays local to
// each process.
type RedisSource struct {
	client *redis.Client
	key    string
}

var (
	_ Source    = (*RedisSource)(nil)
	_ Publisher = (*RedisSource)(nil)
)

// RedisConfig for creating a Redis source
type RedisConfig struct {
	Addr     string // Redis address (e.g., "localhost:6379")
	Password string // Redis password (empty for no auth)
	DB       int    // Redis database number
	Key      string // Key holding the strategies document
}

// NewRedisSource creates a new Redis-backed strategy source
func NewRedisSource(config RedisConfig) (*RedisSource, error) {
	if config.Key == "" {
		return nil, fmt.Errorf("redis strategy key cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisSource{
		client: client,
		key:    config.Key,
	}, nil
}

// Fetch implements Source.
func (s *RedisSource) Fetch(ctx context.Context) (*Strategies, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: redis key %s not set", ErrNoStrategy, s.key)
		}
		return nil, fmt.Errorf("read strategy from redis: %w", err)
	}

	var strategies Strategies
	if err := json.Unmarshal(val, &strategies); err != nil {
		return nil, fmt.Errorf("decode strategy from redis key %s: %w", s.key, err)
	}
	return &strategies, nil
}

// Publish implements Publisher by storing strategies under the source key.
func (s *RedisSource) Publish(ctx context.Context, strategies *Strategies) error {
	data, err := json.Marshal(strategies)
	if err != nil {
		return fmt.Errorf("encode strategy: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write strategy to redis: %w", err)
	}
	return nil
}

// Delete removes the strategies document.
func (s *RedisSource) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Ping checks if Redis connection is alive
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisSource) Close() error {
	return s.client.Close()
}
