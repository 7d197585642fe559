package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/guard"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/model"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// IsConflict reports whether err is the appointments exclusion constraint
// rejecting an overlapping interval (23P01) or a duplicate key (23505).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23P01" || pgErr.Code == "23505"
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// BookingsInRange implements the guard's store port: intervals of live
// rows whose stored interval could overlap [from, to).
func (r *BookingRepository) BookingsInRange(ctx context.Context, stylistID string, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE stylist_id = $1
		  AND status IN ('pending_deposit', 'booked')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, stylistID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// InsertBookings persists one checkout's rows in a single transaction.
// The exclusion constraint makes the batch atomic with respect to
// overlap: either every row lands or the conflict surfaces as
// guard.ErrSlotTaken.
func (r *BookingRepository) InsertBookings(ctx context.Context, bookings []model.Booking) ([]model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.insertTx(ctx, tx, bookings); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return nil, guard.ErrSlotTaken
		}
		return nil, err
	}
	return bookings, nil
}

// InsertBookingsTx is the same insert inside a caller-owned transaction,
// for handlers that also write idempotency and outbox rows atomically.
func (r *BookingRepository) InsertBookingsTx(ctx context.Context, tx pgx.Tx, bookings []model.Booking) error {
	return r.insertTx(ctx, tx, bookings)
}

func (r *BookingRepository) insertTx(ctx context.Context, tx pgx.Tx, bookings []model.Booking) error {
	for _, b := range bookings {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, booking_group_id, salon_id, stylist_id, client_id, service_id,
				 title, category, start_time, end_time, price, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, b.ID, b.GroupID, b.SalonID, b.StylistID, b.ClientID, b.ServiceID,
			b.Title, b.Category, b.Start, b.End, b.Price, b.Status, b.CreatedAt)
		if err != nil {
			if IsConflict(err) {
				return guard.ErrSlotTaken
			}
			return err
		}
	}
	return nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.GroupID, &b.SalonID, &b.StylistID, &b.ClientID, &b.ServiceID,
		&b.Title, &b.Category, &b.Start, &b.End, &b.Price, &b.Status, &b.CreatedAt)
	return b, err
}

const bookingColumns = `id::text, booking_group_id::text, salon_id::text, stylist_id::text,
	client_id::text, service_id::text, title, category, start_time, end_time, price, status, created_at`

// ListForSalon returns a salon's rows in a window, newest day first kept
// in chronological order within the window for calendar rendering.
func (r *BookingRepository) ListForSalon(ctx context.Context, salonID string, from, to time.Time, stylistID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM appointments
		WHERE salon_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND ($4 = '' OR stylist_id::text = $4)
		ORDER BY start_time
	`, salonID, from, to, stylistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepository) GetGroup(ctx context.Context, salonID, groupID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM appointments
		WHERE salon_id = $1 AND booking_group_id = $2
		ORDER BY start_time
	`, salonID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CancelGroupTx marks every live row of a group cancelled inside the
// caller's transaction, so the cancelled event can be staged in the same
// commit. Returns the number of rows touched so handlers can 404 unknown
// groups.
func (r *BookingRepository) CancelGroupTx(ctx context.Context, tx pgx.Tx, salonID, groupID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled'
		WHERE salon_id = $1 AND booking_group_id = $2
		  AND status IN ('pending_deposit', 'booked')
	`, salonID, groupID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelPendingGroupTx cancels a group only while it still waits on its
// deposit. Rows already flipped to booked are left alone so a deposit
// expiry racing a payment never cancels a paid booking.
func (r *BookingRepository) CancelPendingGroupTx(ctx context.Context, tx pgx.Tx, groupID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled'
		WHERE booking_group_id = $1 AND status = 'pending_deposit'
	`, groupID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteGroupTx removes a group's live rows inside a transaction. Used by
// reschedule, which re-inserts the moved chain in the same transaction so
// the exclusion constraint never sees the group conflicting with itself.
func (r *BookingRepository) DeleteGroupTx(ctx context.Context, tx pgx.Tx, salonID, groupID string) ([]model.Booking, error) {
	rows, err := tx.Query(ctx, `
		DELETE FROM appointments
		WHERE salon_id = $1 AND booking_group_id = $2
		  AND status IN ('pending_deposit', 'booked')
		RETURNING `+bookingColumns+`
	`, salonID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkGroupBooked flips a group's pending_deposit rows to booked once the
// deposit is paid. Idempotent.
func (r *BookingRepository) MarkGroupBooked(ctx context.Context, tx pgx.Tx, groupID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'booked'
		WHERE booking_group_id = $1 AND status = 'pending_deposit'
	`, groupID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GroupSummaryTx returns the identifiers and overall span of a group,
// used when a deposit confirmation needs to enqueue the reminder.
func (r *BookingRepository) GroupSummaryTx(ctx context.Context, tx pgx.Tx, groupID string) (salonID, clientID, stylistID string, start, end time.Time, err error) {
	err = tx.QueryRow(ctx, `
		SELECT salon_id::text, client_id::text, stylist_id::text, min(start_time), max(end_time)
		FROM appointments
		WHERE booking_group_id = $1
		GROUP BY salon_id, client_id, stylist_id
	`, groupID).Scan(&salonID, &clientID, &stylistID, &start, &end)
	return
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
