package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

type Salon struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	SlotStepMinutes int    `json:"slot_step_minutes"`
	DepositRequired bool   `json:"deposit_required"`
	DepositAmount   string `json:"deposit_amount"`
}

type Stylist struct {
	ID          string          `json:"id"`
	SalonID     string          `json:"salon_id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Active      bool            `json:"active"`
	WeeklyHours json.RawMessage `json:"weekly_hours"`
}

type Service struct {
	ID              string `json:"id"`
	SalonID         string `json:"salon_id"`
	Title           string `json:"title"`
	Category        string `json:"category"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
}

type Client struct {
	ID      string `json:"id"`
	SalonID string `json:"salon_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type ClientNote struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"client_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type TimeOff struct {
	ID        int64     `json:"id"`
	StylistID string    `json:"stylist_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Reason    string    `json:"reason"`
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

// --- salons ---

func (r *Repository) CreateSalon(ctx context.Context, s Salon) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO salons (id, name, timezone, slot_step_minutes, deposit_required, deposit_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.Name, s.Timezone, s.SlotStepMinutes, s.DepositRequired, s.DepositAmount)
	return err
}

func (r *Repository) GetSalon(ctx context.Context, id string) (Salon, error) {
	var s Salon
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, slot_step_minutes, deposit_required, deposit_amount
		FROM salons WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Timezone, &s.SlotStepMinutes, &s.DepositRequired, &s.DepositAmount)
	return s, err
}

func (r *Repository) UpdateSalonTx(ctx context.Context, tx pgx.Tx, s Salon) error {
	tag, err := tx.Exec(ctx, `
		UPDATE salons
		SET name = $2, timezone = $3, slot_step_minutes = $4,
		    deposit_required = $5, deposit_amount = $6, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Name, s.Timezone, s.SlotStepMinutes, s.DepositRequired, s.DepositAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// --- stylists ---

func (r *Repository) CreateStylist(ctx context.Context, st Stylist) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stylists (id, salon_id, name, phone, active, weekly_hours)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, st.ID, st.SalonID, st.Name, st.Phone, st.Active, st.WeeklyHours)
	return err
}

func (r *Repository) ListStylists(ctx context.Context, salonID string) ([]Stylist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, name, phone, active, weekly_hours
		FROM stylists WHERE salon_id = $1 ORDER BY name
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stylist
	for rows.Next() {
		var st Stylist
		if err := rows.Scan(&st.ID, &st.SalonID, &st.Name, &st.Phone, &st.Active, &st.WeeklyHours); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *Repository) GetStylist(ctx context.Context, salonID, id string) (Stylist, error) {
	var st Stylist
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, salon_id::text, name, phone, active, weekly_hours
		FROM stylists WHERE salon_id = $1 AND id = $2
	`, salonID, id).Scan(&st.ID, &st.SalonID, &st.Name, &st.Phone, &st.Active, &st.WeeklyHours)
	return st, err
}

func (r *Repository) UpdateStylistTx(ctx context.Context, tx pgx.Tx, st Stylist) error {
	tag, err := tx.Exec(ctx, `
		UPDATE stylists
		SET name = $3, phone = $4, active = $5, weekly_hours = $6, updated_at = now()
		WHERE salon_id = $1 AND id = $2
	`, st.SalonID, st.ID, st.Name, st.Phone, st.Active, st.WeeklyHours)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// --- services catalog ---

func (r *Repository) CreateServiceTx(ctx context.Context, tx pgx.Tx, s Service) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO services (id, salon_id, title, category, duration_minutes, price, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.SalonID, s.Title, s.Category, s.DurationMinutes, s.Price, s.Active)
	return err
}

func (r *Repository) UpdateServiceTx(ctx context.Context, tx pgx.Tx, s Service) error {
	tag, err := tx.Exec(ctx, `
		UPDATE services
		SET title = $3, category = $4, duration_minutes = $5, price = $6, active = $7, updated_at = now()
		WHERE salon_id = $1 AND id = $2
	`, s.SalonID, s.ID, s.Title, s.Category, s.DurationMinutes, s.Price, s.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListServices returns the salon's catalog; activeOnly limits it to what
// the public booking page may offer.
func (r *Repository) ListServices(ctx context.Context, salonID string, activeOnly bool) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, title, category, duration_minutes, price, active
		FROM services
		WHERE salon_id = $1 AND (NOT $2 OR active)
		ORDER BY category, title
	`, salonID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.SalonID, &s.Title, &s.Category, &s.DurationMinutes, &s.Price, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) ListServicesTx(ctx context.Context, tx pgx.Tx, salonID string, activeOnly bool) ([]Service, error) {
	rows, err := tx.Query(ctx, `
		SELECT id::text, salon_id::text, title, category, duration_minutes, price, active
		FROM services
		WHERE salon_id = $1 AND (NOT $2 OR active)
		ORDER BY category, title
	`, salonID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.SalonID, &s.Title, &s.Category, &s.DurationMinutes, &s.Price, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- clients ---

func (r *Repository) CreateClient(ctx context.Context, c Client) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clients (id, salon_id, name, phone, email)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.SalonID, c.Name, c.Phone, c.Email)
	return err
}

func (r *Repository) UpdateClient(ctx context.Context, c Client) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients SET name = $3, phone = $4, email = $5, updated_at = now()
		WHERE salon_id = $1 AND id = $2
	`, c.SalonID, c.ID, c.Name, c.Phone, c.Email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SearchClients matches name, phone or email prefix for the reception
// lookup box.
func (r *Repository) SearchClients(ctx context.Context, salonID, query string, limit int) ([]Client, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, name, phone, email
		FROM clients
		WHERE salon_id = $1
		  AND ($2 = '' OR name ILIKE $2 || '%' OR phone LIKE $2 || '%' OR email ILIKE $2 || '%')
		ORDER BY name
		LIMIT $3
	`, salonID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.SalonID, &c.Name, &c.Phone, &c.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) AddClientNote(ctx context.Context, clientID, authorID, body string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO client_notes (client_id, author_id, body) VALUES ($1, $2, $3)
	`, clientID, authorID, body)
	return err
}

func (r *Repository) ListClientNotes(ctx context.Context, clientID string) ([]ClientNote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id::text, author_id::text, body, created_at
		FROM client_notes WHERE client_id = $1 ORDER BY id DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClientNote
	for rows.Next() {
		var n ClientNote
		if err := rows.Scan(&n.ID, &n.ClientID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- time off ---

func (r *Repository) AddTimeOffTx(ctx context.Context, tx pgx.Tx, t TimeOff) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stylist_time_off (stylist_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4)
	`, t.StylistID, t.Start, t.End, t.Reason)
	return err
}

func (r *Repository) DeleteTimeOffTx(ctx context.Context, tx pgx.Tx, stylistID string, id int64) error {
	tag, err := tx.Exec(ctx, `
		DELETE FROM stylist_time_off WHERE stylist_id = $1 AND id = $2
	`, stylistID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListTimeOffTx(ctx context.Context, tx pgx.Tx, stylistID string) ([]TimeOff, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, stylist_id::text, start_time, end_time, reason
		FROM stylist_time_off WHERE stylist_id = $1 ORDER BY start_time
	`, stylistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.StylistID, &t.Start, &t.End, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
