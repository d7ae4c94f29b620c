package billing

import (
	"context"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/cache"
)

// Ledger records processed webhook event ids.
type Ledger interface {
	// Claim marks id as in progress. It returns false when id was already claimed.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets a claim so a redelivery is processed again.
	Release(ctx context.Context, id string) error
}

const ledgerKeyPrefix = "webhook:event:"

// KVLedger claims event ids with SET NX and expires them after ttl.
type KVLedger struct {
	kv  KV
	ttl time.Duration
}

func NewKVLedger(kv KV, ttl time.Duration) *KVLedger {
	return &KVLedger{kv: kv, ttl: ttl}
}

func (l *KVLedger) Claim(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyEventID
	}
	return l.kv.SetNX(ctx, ledgerKeyPrefix+id, []byte(time.Now().UTC().Format(time.RFC3339)), l.ttl)
}

func (l *KVLedger) Release(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyEventID
	}
	return l.kv.Delete(ctx, ledgerKeyPrefix+id)
}

// maxMemoryClaims bounds a MemoryLedger; the oldest claims are forgotten first.
const maxMemoryClaims = 100_000

// MemoryLedger is an in-process Ledger with per-claim expiry. A duplicate
// delivery refreshes the claim.
type MemoryLedger struct {
	claims *cache.LRU[string, struct{}]
}

// NewMemoryLedger creates a ledger whose claims expire after ttl; zero keeps
// them until evicted.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{claims: cache.New[string, struct{}](maxMemoryClaims, cache.WithTTL(ttl))}
}

func (l *MemoryLedger) Claim(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyEventID
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var claimed bool
	l.claims.Update(id, func(_ struct{}, seen bool) struct{} {
		claimed = !seen
		return struct{}{}
	})
	return claimed, nil
}

func (l *MemoryLedger) Release(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyEventID
	}
	l.claims.Delete(id)
	return nil
}

// nopLedger accepts every claim; ordering by occurred_at still keeps writes idempotent.
type nopLedger struct{}

func (nopLedger) Claim(context.Context, string) (bool, error) { return true, nil }
func (nopLedger) Release(context.Context, string) error       { return nil }
