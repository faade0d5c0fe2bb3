// Package redis implements cart.Storage on Redis string keys with expiry.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

var _ cart.Storage = (*Storage)(nil)

// Storage keeps each cart payload as a Redis string with a TTL that is
// refreshed on every write.
type Storage struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a Storage using client. Keys are stored as prefix+key.
func New(client goredis.UniversalClient, prefix string, ttl time.Duration) *Storage {
	if ttl <= 0 {
		ttl = cart.DefaultTTL
	}
	return &Storage{client: client, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, rawURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// GetItem returns the payload for key; redis.Nil maps to absent.
func (s *Storage) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redis get %q", key)
	}
	return v, true, nil
}

// SetItem stores value with the configured TTL.
func (s *Storage) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %q", key)
	}
	return nil
}

// RemoveItem deletes key.
func (s *Storage) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "redis del %q", key)
	}
	return nil
}
