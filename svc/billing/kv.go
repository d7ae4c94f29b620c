package billing

import (
	"context"
	"time"
)

// KV is the key-value store behind the Redis ledger and customer cache.
// *redis.Storage from pkg/redis satisfies it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
