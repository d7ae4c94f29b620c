// Package ratelimit implements an in-memory token bucket limiter keyed by
// arbitrary strings, plus HTTP middleware that rejects excess requests with
// 429 Too Many Requests.
//
// Buckets live in a bounded LRU, so idle keys are forgotten once capacity is
// reached or they sit unused longer than a full refill.
package ratelimit
