package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

// IdempotencyRepository records public-booking idempotency keys so a
// retried POST replays the original response instead of double-booking.
type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Claim locks the key row (FOR UPDATE) inside the caller's transaction.
// Returns the stored response when the key was already completed, or
// ok=false when the key is fresh and the caller should proceed and call
// Complete before commit.
func (r *IdempotencyRepository) Claim(ctx context.Context, tx pgx.Tx, key string) (response []byte, status int, ok bool, err error) {
	_, err = tx.Exec(ctx, `
		INSERT INTO idempotency_keys (key)
		VALUES ($1)
		ON CONFLICT (key) DO NOTHING
	`, key)
	if err != nil {
		return nil, 0, false, err
	}
	err = tx.QueryRow(ctx, `
		SELECT response_body, response_status
		FROM idempotency_keys
		WHERE key = $1
		FOR UPDATE
	`, key).Scan(&response, &status)
	if err != nil {
		return nil, 0, false, err
	}
	if status != 0 {
		return response, status, true, nil
	}
	return nil, 0, false, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, tx pgx.Tx, key string, status int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET response_status = $2, response_body = $3, completed_at = now()
		WHERE key = $1
	`, key, status, response)
	return err
}
