package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adrianwedd/ltm-service/internal/config"
	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
)

func init() {
	registrykv.Register(registrykv.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrykv.KeyValueStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis kv: LTM_REDIS_URL is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis kv: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis kv: ping failed: %w", err)
	}
	return &Store{client: client}, nil
}

// Store is the Redis-backed key-value store. Each bucket maps to a Redis
// hash, which keeps List a single HGETALL.
type Store struct {
	client *goredis.Client
}

func (s *Store) Name() string { return "redis" }

func bucketKey(bucket string) string {
	return "ltm:" + bucket
}

func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) error {
	return s.client.HSet(ctx, bucketKey(bucket), key, value).Err()
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	v, err := s.client.HGet(ctx, bucketKey(bucket), key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, registrykv.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	return s.client.HDel(ctx, bucketKey(bucket), key).Err()
}

func (s *Store) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	entries, err := s.client.HGetAll(ctx, bucketKey(bucket)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for k, v := range entries {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ registrykv.KeyValueStore = (*Store)(nil)
