// Package redis connects to Redis with github.com/redis/go-redis/v9 and exposes
// a small namespaced key-value Storage used for caches and idempotency keys.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	store := redis.NewStorage(client, cfg.KeyPrefix)
//	ok, err := store.SetNX(ctx, "webhook:evt_123", []byte("1"), 72*time.Hour)
//
// Healthcheck adapts a client to a readiness probe.
package redis
