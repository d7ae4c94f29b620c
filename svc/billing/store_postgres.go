package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps records in the subscriptions table created by Migrations.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const getSubscriptionSQL = `
SELECT status, last_updated FROM subscriptions WHERE email = $1`

// The write and the ordering check happen in one statement; concurrent
// writers serialize on the primary key row.
const upsertSubscriptionSQL = `
WITH prev AS (
    SELECT status FROM subscriptions WHERE email = $1
), up AS (
    INSERT INTO subscriptions (email, status, last_updated, updated_at)
    VALUES ($1, $2, $3, now())
    ON CONFLICT (email) DO UPDATE
        SET status = EXCLUDED.status,
            last_updated = EXCLUDED.last_updated,
            updated_at = now()
        WHERE subscriptions.last_updated <= EXCLUDED.last_updated
    RETURNING 1
)
SELECT EXISTS (SELECT 1 FROM up), COALESCE((SELECT status FROM prev), 'unknown')`

const listSubscriptionsSQL = `
SELECT email, status, last_updated FROM subscriptions
WHERE email > $1
ORDER BY email
LIMIT $2`

func (s *PostgresStore) Get(ctx context.Context, email string) (Record, error) {
	rec := Record{Email: email}
	var status string
	err := s.db.QueryRow(ctx, getSubscriptionSQL, email).Scan(&status, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{Email: email, Status: StatusUnknown}, nil
	}
	if err != nil {
		return Record{}, errors.Join(ErrStoreUnavailable, err)
	}
	rec.Status = parseStatus(status)
	rec.LastUpdated = rec.LastUpdated.UTC()
	return rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, email string, status Status, occurredAt time.Time) (UpsertResult, error) {
	if err := validateWrite(email, status); err != nil {
		return UpsertResult{}, err
	}

	var (
		applied bool
		prev    string
	)
	err := s.db.QueryRow(ctx, upsertSubscriptionSQL, email, string(status), occurredAt.UTC()).Scan(&applied, &prev)
	if err != nil {
		return UpsertResult{}, errors.Join(ErrStoreUnavailable, err)
	}
	return UpsertResult{Applied: applied, Previous: parseStatus(prev)}, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int, afterEmail string) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, listSubscriptionsSQL, afterEmail, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			rec    Record
			status string
		)
		if err := row.Scan(&rec.Email, &status, &rec.LastUpdated); err != nil {
			return Record{}, err
		}
		rec.Status = parseStatus(status)
		rec.LastUpdated = rec.LastUpdated.UTC()
		return rec, nil
	})
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}

func parseStatus(s string) Status {
	st := Status(s)
	if !st.Valid() {
		return StatusUnknown
	}
	return st
}
