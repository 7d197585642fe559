package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/guard"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/model"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

// TxStore binds the guard's store port to one open transaction so a
// handler can commit bookings, the idempotency record and outbox events
// atomically. Conflicts still surface as guard.ErrSlotTaken; with the
// exclusion constraint they may only appear at the enclosing tx commit,
// which the handler maps through IsConflict.
type TxStore struct {
	tx pgx.Tx
}

func (r *BookingRepository) WithTx(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

func (s *TxStore) BookingsInRange(ctx context.Context, stylistID string, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := s.tx.Query(ctx, `
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

func (s *TxStore) InsertBookings(ctx context.Context, bookings []model.Booking) ([]model.Booking, error) {
	for _, b := range bookings {
		_, err := s.tx.Exec(ctx, `
			INSERT INTO appointments
				(id, booking_group_id, salon_id, stylist_id, client_id, service_id,
				 title, category, start_time, end_time, price, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, b.ID, b.GroupID, b.SalonID, b.StylistID, b.ClientID, b.ServiceID,
			b.Title, b.Category, b.Start, b.End, b.Price, b.Status, b.CreatedAt)
		if err != nil {
			if IsConflict(err) {
				return nil, guard.ErrSlotTaken
			}
			return nil, err
		}
	}
	return bookings, nil
}
