package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonbookhq/salonbook/libs/db"
)

// Counter names accepted by BumpDailyTx, mapped to daily_stats columns.
const (
	CounterBookingsCreated   = "bookings_created"
	CounterBookingsConfirmed = "bookings_confirmed"
	CounterBookingsCancelled = "bookings_cancelled"
	CounterReschedules       = "reschedules"
	CounterRemindersSent     = "reminders_sent"
	CounterRemindersFailed   = "reminders_failed"
)

var counterColumns = map[string]bool{
	CounterBookingsCreated:   true,
	CounterBookingsConfirmed: true,
	CounterBookingsCancelled: true,
	CounterReschedules:       true,
	CounterRemindersSent:     true,
	CounterRemindersFailed:   true,
}

type DailyStats struct {
	Day               string `json:"day"`
	BookingsCreated   int    `json:"bookings_created"`
	BookingsConfirmed int    `json:"bookings_confirmed"`
	BookingsCancelled int    `json:"bookings_cancelled"`
	Reschedules       int    `json:"reschedules"`
	RemindersSent     int    `json:"reminders_sent"`
	RemindersFailed   int    `json:"reminders_failed"`
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

// RememberGroupTx records which salon a booking group belongs to so
// later events that carry only the group id can be attributed.
func (r *Repository) RememberGroupTx(ctx context.Context, tx pgx.Tx, groupID, salonID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_groups (group_id, salon_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id) DO NOTHING
	`, groupID, salonID)
	return err
}

// SalonForGroupTx returns "" when the group was never seen, which
// happens for events that raced ahead of booking.created.
func (r *Repository) SalonForGroupTx(ctx context.Context, tx pgx.Tx, groupID string) (string, error) {
	var salonID string
	err := tx.QueryRow(ctx, `
		SELECT salon_id::text FROM booking_groups WHERE group_id = $1
	`, groupID).Scan(&salonID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return salonID, err
}

func (r *Repository) BumpDailyTx(ctx context.Context, tx pgx.Tx, salonID string, day time.Time, counter string) error {
	if !counterColumns[counter] {
		return fmt.Errorf("unknown counter %q", counter)
	}
	// counter is validated against the whitelist above, so the
	// interpolation cannot inject.
	query := fmt.Sprintf(`
		INSERT INTO daily_stats (salon_id, day, %[1]s)
		VALUES ($1, $2, 1)
		ON CONFLICT (salon_id, day)
		DO UPDATE SET %[1]s = daily_stats.%[1]s + 1
	`, counter)
	_, err := tx.Exec(ctx, query, salonID, day.Format("2006-01-02"))
	return err
}

func (r *Repository) DailyRange(ctx context.Context, salonID string, from, to time.Time) ([]DailyStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day::text, bookings_created, bookings_confirmed, bookings_cancelled,
		       reschedules, reminders_sent, reminders_failed
		FROM daily_stats
		WHERE salon_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, salonID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyStats
	for rows.Next() {
		var s DailyStats
		if err := rows.Scan(&s.Day, &s.BookingsCreated, &s.BookingsConfirmed, &s.BookingsCancelled,
			&s.Reschedules, &s.RemindersSent, &s.RemindersFailed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) Totals(ctx context.Context, salonID string) (DailyStats, error) {
	var s DailyStats
	s.Day = "total"
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(bookings_created), 0), COALESCE(SUM(bookings_confirmed), 0),
		       COALESCE(SUM(bookings_cancelled), 0), COALESCE(SUM(reschedules), 0),
		       COALESCE(SUM(reminders_sent), 0), COALESCE(SUM(reminders_failed), 0)
		FROM daily_stats WHERE salon_id = $1
	`, salonID).Scan(&s.BookingsCreated, &s.BookingsConfirmed, &s.BookingsCancelled,
		&s.Reschedules, &s.RemindersSent, &s.RemindersFailed)
	return s, err
}
