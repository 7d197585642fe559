package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

type Notification struct {
	ID             int64
	BookingGroupID string
	Channel        string
	Recipient      string
	Status         string
	Error          string
	CreatedAt      time.Time
}

// ClientContact is the mirrored contact card from salon-service events.
type ClientContact struct {
	ClientID string
	Name     string
	Phone    string
	Email    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) UpsertContactTx(ctx context.Context, tx pgx.Tx, c ClientContact) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO client_contacts (client_id, name, phone, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id)
		DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone,
		              email = EXCLUDED.email, updated_at = now()
	`, c.ClientID, c.Name, c.Phone, c.Email)
	return err
}

func (r *Repository) GetContact(ctx context.Context, clientID string) (ClientContact, bool, error) {
	var c ClientContact
	err := r.pool.QueryRow(ctx, `
		SELECT client_id::text, name, phone, email
		FROM client_contacts WHERE client_id = $1
	`, clientID).Scan(&c.ClientID, &c.Name, &c.Phone, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientContact{}, false, nil
		}
		return ClientContact{}, false, err
	}
	return c, true, nil
}

func (r *Repository) RecordTx(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (booking_group_id, channel, recipient, status, error)
		VALUES ($1, $2, $3, $4, $5)
	`, n.BookingGroupID, n.Channel, n.Recipient, n.Status, n.Error)
	return err
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_group_id::text, channel, recipient, status, error, created_at
		FROM notifications ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.BookingGroupID, &n.Channel, &n.Recipient, &n.Status, &n.Error, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
