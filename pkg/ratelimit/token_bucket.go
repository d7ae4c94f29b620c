package ratelimit

import (
	"math"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/cache"
)

const defaultMaxKeys = 10_000

// Result describes the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until one token is available again. Zero when allowed.
	RetryAfter time.Duration
}

type bucket struct {
	tokens float64
	last   time.Time
}

// TokenBucket refills limit tokens per interval up to burst per key.
type TokenBucket struct {
	limit    int
	burst    int
	interval time.Duration
	now      func() time.Time
	buckets  *cache.LRU[string, bucket]
}

// Option configures a TokenBucket.
type Option func(*settings)

type settings struct {
	burst   int
	maxKeys int
	now      func() time.Time
}

// WithBurst sets the bucket capacity. Defaults to limit.
func WithBurst(n int) Option {
	return func(s *settings) { s.burst = n }
}

// WithMaxKeys bounds the number of tracked keys.
func WithMaxKeys(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenBucket allows limit requests per interval for each key.
func NewTokenBucket(limit int, interval time.Duration, opts ...Option) (*TokenBucket, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	s := settings{maxKeys: defaultMaxKeys, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.burst < 0 {
		return nil, ErrInvalidBurst
	}
	if s.burst == 0 {
		s.burst = limit
	}

	refill := time.Duration(int64(s.burst) * int64(interval) / int64(limit))

	return &TokenBucket{
		limit:    limit,
		burst:    s.burst,
		interval: interval,
		now:      s.now,
		buckets:  cache.New[string, bucket](s.maxKeys, cache.WithTTL(refill), cache.WithClock(s.now)),
	}, nil
}

// Allow consumes one token for key if available.
func (tb *TokenBucket) Allow(key string) Result {
	now := tb.now()
	var res Result

	tb.buckets.Update(key, func(b bucket, ok bool) bucket {
		if !ok {
			b = bucket{tokens: float64(tb.burst), last: now}
		}
		if elapsed := now.Sub(b.last); elapsed > 0 {
			b.tokens = math.Min(float64(tb.burst), b.tokens+tb.tokensFor(elapsed))
			b.last = now
		}

		res.Limit = tb.burst
		if b.tokens >= 1 {
			b.tokens--
			res.Allowed = true
		} else {
			res.RetryAfter = time.Duration(math.Ceil((1 - b.tokens) * float64(tb.interval) / float64(tb.limit)))
		}
		res.Remaining = int(b.tokens)
		return b
	})

	return res
}

func (tb *TokenBucket) tokensFor(d time.Duration) float64 {
	return float64(d) * float64(tb.limit) / float64(tb.interval)
}
