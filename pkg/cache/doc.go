// Package cache provides a bounded, concurrency-safe in-memory LRU cache
// with optional per-entry expiry.
//
//	c := cache.New[string, string](10_000, cache.WithTTL(24*time.Hour))
//	c.Set("customer:email:a@x.com", "cus_123")
//	id, ok := c.Get("customer:email:a@x.com")
//
// When the cache is full the least recently used entry is evicted. Expired
// entries are dropped lazily on access.
package cache
