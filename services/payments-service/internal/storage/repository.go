package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

const (
	DepositPending = "pending"
	DepositPaid    = "paid"
	DepositExpired = "expired"
)

// Deposit tracks one booking group's no-show deposit through Stripe
// Checkout.
type Deposit struct {
	BookingGroupID  string    `json:"booking_group_id"`
	SalonID         string    `json:"salon_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	StripeSessionID string    `json:"-"`
	CheckoutURL     string    `json:"checkout_url,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) Insert(ctx context.Context, d Deposit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deposits (booking_group_id, salon_id, amount_cents, currency, stripe_session_id, checkout_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.BookingGroupID, d.SalonID, d.AmountCents, d.Currency, d.StripeSessionID, d.CheckoutURL, d.Status)
	return err
}

func (r *Repository) Get(ctx context.Context, groupID string) (Deposit, error) {
	var d Deposit
	err := r.pool.QueryRow(ctx, `
		SELECT booking_group_id::text, salon_id::text, amount_cents, currency,
		       stripe_session_id, checkout_url, status, created_at
		FROM deposits WHERE booking_group_id = $1
	`, groupID).Scan(&d.BookingGroupID, &d.SalonID, &d.AmountCents, &d.Currency,
		&d.StripeSessionID, &d.CheckoutURL, &d.Status, &d.CreatedAt)
	return d, err
}

// MarkPaidBySessionTx flips the deposit to paid and returns it. ok is
// false when the session is unknown or the deposit already left pending,
// which keeps webhook replays idempotent.
func (r *Repository) MarkPaidBySessionTx(ctx context.Context, tx pgx.Tx, sessionID string) (Deposit, bool, error) {
	var d Deposit
	err := tx.QueryRow(ctx, `
		UPDATE deposits
		SET status = 'paid', updated_at = now()
		WHERE stripe_session_id = $1 AND status = 'pending'
		RETURNING booking_group_id::text, salon_id::text, amount_cents, currency,
		          stripe_session_id, checkout_url, status, created_at
	`, sessionID).Scan(&d.BookingGroupID, &d.SalonID, &d.AmountCents, &d.Currency,
		&d.StripeSessionID, &d.CheckoutURL, &d.Status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deposit{}, false, nil
		}
		return Deposit{}, false, err
	}
	return d, true, nil
}

// RecordProviderEventTx stores the Stripe event id; false means we have
// seen it before and the webhook should be acknowledged without effects.
func (r *Repository) RecordProviderEventTx(ctx context.Context, tx pgx.Tx, providerEventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider_event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (provider_event_id) DO NOTHING
	`, providerEventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStale marks pending deposits older than cutoff expired and
// returns the affected groups so their held slots can be released.
func (r *Repository) ExpireStale(ctx context.Context, tx pgx.Tx, cutoff time.Time) ([]Deposit, error) {
	rows, err := tx.Query(ctx, `
		UPDATE deposits
		SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND created_at < $1
		RETURNING booking_group_id::text, salon_id::text, amount_cents, currency,
		          stripe_session_id, checkout_url, status, created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deposit
	for rows.Next() {
		var d Deposit
		if err := rows.Scan(&d.BookingGroupID, &d.SalonID, &d.AmountCents, &d.Currency,
			&d.StripeSessionID, &d.CheckoutURL, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
