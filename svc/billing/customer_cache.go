package billing

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/cache"
	"github.com/dmitrymomot/confeitaria/pkg/redis"
)

// CustomerCache maps emails to processor customer ids and back.
// Lookups return ErrCustomerNotCached on a miss.
type CustomerCache interface {
	CustomerID(ctx context.Context, email string) (string, error)
	Email(ctx context.Context, customerID string) (string, error)
	Remember(ctx context.Context, ref CustomerRef) error
}

const (
	customerByEmailPrefix = "customer:email:"
	customerByIDPrefix    = "customer:id:"
)

// KVCustomerCache stores both directions of each reference in a KV.
type KVCustomerCache struct {
	kv  KV
	ttl time.Duration
}

func NewKVCustomerCache(kv KV, ttl time.Duration) *KVCustomerCache {
	return &KVCustomerCache{kv: kv, ttl: ttl}
}

func (c *KVCustomerCache) CustomerID(ctx context.Context, email string) (string, error) {
	return c.get(ctx, customerByEmailPrefix+email)
}

func (c *KVCustomerCache) Email(ctx context.Context, customerID string) (string, error) {
	return c.get(ctx, customerByIDPrefix+customerID)
}

func (c *KVCustomerCache) Remember(ctx context.Context, ref CustomerRef) error {
	if ref.Email == "" || ref.CustomerID == "" {
		return nil
	}
	return errors.Join(
		c.kv.Set(ctx, customerByEmailPrefix+ref.Email, []byte(ref.CustomerID), c.ttl),
		c.kv.Set(ctx, customerByIDPrefix+ref.CustomerID, []byte(ref.Email), c.ttl),
	)
}

func (c *KVCustomerCache) get(ctx context.Context, key string) (string, error) {
	val, err := c.kv.Get(ctx, key)
	if errors.Is(err, redis.ErrKeyNotFound) {
		return "", ErrCustomerNotCached
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// DefaultMemoryCacheSize bounds each direction of a MemoryCustomerCache.
const DefaultMemoryCacheSize = 10_000

// MemoryCustomerCache keeps the most recently used references in process.
type MemoryCustomerCache struct {
	byEmail *cache.LRU[string, string]
	byID    *cache.LRU[string, string]
}

func NewMemoryCustomerCache() *MemoryCustomerCache {
	return &MemoryCustomerCache{
		byEmail: cache.New[string, string](DefaultMemoryCacheSize),
		byID:    cache.New[string, string](DefaultMemoryCacheSize),
	}
}

func (c *MemoryCustomerCache) CustomerID(_ context.Context, email string) (string, error) {
	if id, ok := c.byEmail.Get(email); ok {
		return id, nil
	}
	return "", ErrCustomerNotCached
}

func (c *MemoryCustomerCache) Email(_ context.Context, customerID string) (string, error) {
	if email, ok := c.byID.Get(customerID); ok {
		return email, nil
	}
	return "", ErrCustomerNotCached
}

func (c *MemoryCustomerCache) Remember(_ context.Context, ref CustomerRef) error {
	if ref.Email == "" || ref.CustomerID == "" {
		return nil
	}
	c.byEmail.Set(ref.Email, ref.CustomerID)
	c.byID.Set(ref.CustomerID, ref.Email)
	return nil
}
