package marker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key used when none is configured.
const DefaultRedisKey = "roomwatch:last_sent"

// RedisOptions configures DialRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// TTL expires the marker; 0 keeps it forever.
	TTL time.Duration
}

// Redis keeps the marker under one key, for deployments where the job runs
// on ephemeral hosts that do not share a filesystem.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	owned  bool
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// OpenRedis creates a client from opts without contacting the server.
func OpenRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	r := NewRedis(client, opts.Key, opts.TTL)
	r.owned = true
	return r
}

// DialRedis is OpenRedis followed by a ping.
func DialRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	r := OpenRedis(opts)
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.Close()
		return nil, fmt.Errorf("marker: redis ping %s: %w", opts.Addr, err)
	}
	return r, nil
}

func (r *Redis) Get(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("marker: redis get: %w", err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, value string) error {
	if err := r.client.Set(ctx, r.key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("marker: redis set: %w", err)
	}
	return nil
}

// Close closes the client if DialRedis created it.
func (r *Redis) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
