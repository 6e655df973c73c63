package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN.
const scanBatch = 256

// Redis is a Store backed by a redis server.
type Redis struct {
	client    *redis.Client
	namespace string
}

var _ Store = (*Redis)(nil)

// RedisConfig configures the redis store.
type RedisConfig struct {
	// URL is the redis connection URL (e.g. "redis://localhost:6379/0").
	URL string
	// Namespace is prepended to every key (optional).
	Namespace string
}

// NewRedis connects to redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, wrap(err, "open", cfg.URL)
	}
	return &Redis{client: client, namespace: cfg.Namespace}, nil
}

func (r *Redis) k(key string) string { return r.namespace + key }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("get", key)
	}
	if err != nil {
		return nil, wrap(err, "get", key)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return wrap(r.client.Set(ctx, r.k(key), value, 0).Err(), "set", key)
}

func (r *Redis) Destroy(ctx context.Context, key string) error {
	return wrap(r.client.Del(ctx, r.k(key)).Err(), "destroy", key)
}

func (r *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(r.k(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(err, "list", prefix)
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// escapeGlob escapes redis MATCH metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
