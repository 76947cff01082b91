// Package redis holds the change-feed de-duplication keys, so that several
// observer processes share one view of what was already handled.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bombily:feed:"

func NewClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password})
}

type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Deduper{client: client, ttl: ttl}
}

// Seen marks key as handled and reports whether it already was.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, keyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Forget drops the mark so the key can be handled again.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, keyPrefix+key).Err()
}

func (d *Deduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
