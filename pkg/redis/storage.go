package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a namespaced key-value view over a Redis client. Every key is
// prefixed with the configured namespace.
type Storage struct {
	db     redis.UniversalClient
	prefix string
}

// NewStorage wraps client, prefixing keys with prefix.
func NewStorage(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{db: client, prefix: prefix}
}

func (s *Storage) key(k string) (string, error) {
	if k == "" {
		return "", ErrEmptyKey
	}
	return s.prefix + k, nil
}

// Get returns the stored value or ErrKeyNotFound.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	val, err := s.db.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

// Set stores val under key. A zero ttl means no expiration.
func (s *Storage) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.db.Set(ctx, k, val, ttl).Err()
}

// SetNX stores val only when key does not exist and reports whether it did.
func (s *Storage) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	return s.db.SetNX(ctx, k, val, ttl).Result()
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.db.Del(ctx, k).Err()
}
