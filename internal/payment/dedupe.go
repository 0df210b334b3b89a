package payment

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

var _ order.Deduper = (*RedisDeduper)(nil)

// RedisDeduper claims event ids with SET NX so that every replica agrees on
// which delivery was first. Claims expire after ttl.
type RedisDeduper struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper returns a deduper storing keys under prefix.
func NewRedisDeduper(rdb *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Claim reports whether key was unclaimed.
func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim %s", key)
	}
	return ok, nil
}

// Release drops the claim on key.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "release %s", key)
	}
	return nil
}

// Check pings redis.
func (d *RedisDeduper) Check(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

var _ order.Deduper = (*MemoryDeduper)(nil)

// MemoryDeduper is a single-process deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduper returns a deduper whose claims expire after ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
	return nil
}
