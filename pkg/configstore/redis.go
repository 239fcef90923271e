package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig contains configuration for the Redis store.
type RedisConfig struct {
	// URL is the connection URL, e.g. "redis://localhost:6379/0".
	URL string

	// KeyPrefix namespaces keys written by the store.
	KeyPrefix string

	// PoolSize is the maximum number of socket connections (0 = client default).
	PoolSize int

	// DialTimeout bounds connection establishment (0 = client default).
	DialTimeout time.Duration
}

// RedisStore persists each field as one string key. Several gateway
// processes can share a RedisStore to see the same endpoints.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, newStorageError("redis", "open", errors.New("url is required"))
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, newStorageError("redis", "parse_url", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, newStorageError("redis", "ping", err)
	}

	logger := slog.Default().With("component", "configstore.redis")
	logger.Info("Redis config store connected", "addr", opts.Addr, "db", opts.DB)

	return &RedisStore{client: client, prefix: cfg.KeyPrefix, logger: logger}, nil
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("%sfield:%s", s.prefix, name)
}

// GetField implements Store.
func (s *RedisStore) GetField(ctx context.Context, name string) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, newStorageError("redis", "get", err)
	}
	return json.RawMessage(val), nil
}

// SetField implements Store.
func (s *RedisStore) SetField(ctx context.Context, name string, value json.RawMessage) error {
	if err := validValue("redis", value); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(name), []byte(value), 0).Err(); err != nil {
		return newStorageError("redis", "set", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return newStorageError("redis", "ping", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
