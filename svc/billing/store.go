package billing

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists the subscription state per email.
//
// Upsert must be atomic: it applies only when no stored record is newer
// than occurredAt, so out-of-order deliveries converge on the latest event.
type Store interface {
	// Get returns StatusUnknown with a nil error for unknown emails.
	Get(ctx context.Context, email string) (Record, error)
	Upsert(ctx context.Context, email string, status Status, occurredAt time.Time) (UpsertResult, error)
	// List returns up to limit records ordered by email, starting after afterEmail.
	List(ctx context.Context, limit int, afterEmail string) ([]Record, error)
}

func validateWrite(email string, status Status) error {
	if email == "" {
		return ErrEmptyEmail
	}
	if status != StatusActive && status != StatusInactive {
		return ErrInvalidStatus
	}
	return nil
}

// MemoryStore is a mutex-guarded Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, email string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[email]; ok {
		return rec, nil
	}
	return Record{Email: email, Status: StatusUnknown}, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, email string, status Status, occurredAt time.Time) (UpsertResult, error) {
	if err := validateWrite(email, status); err != nil {
		return UpsertResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[email]
	if !ok {
		prev.Status = StatusUnknown
	} else if prev.LastUpdated.After(occurredAt) {
		return UpsertResult{Applied: false, Previous: prev.Status}, nil
	}

	s.records[email] = Record{Email: email, Status: status, LastUpdated: occurredAt.UTC()}
	return UpsertResult{Applied: true, Previous: prev.Status}, nil
}

func (s *MemoryStore) List(ctx context.Context, limit int, afterEmail string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for email, rec := range s.records {
		if email > afterEmail {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.Email, b.Email) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
