package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

// HoursRepository is the local mirror of salon-service data the slot
// computation needs: stylist weekly hours, time off, and per-salon
// booking settings. Rows are upserted by the kafka consumer so slot
// requests never call across services.
type HoursRepository struct {
	pool *db.Pool
}

func NewHoursRepository(pool *db.Pool) *HoursRepository {
	return &HoursRepository{pool: pool}
}

type SalonSettings struct {
	SalonID         string
	Timezone        string
	SlotStepMin     int
	DepositRequired bool
	DepositAmount   string
	UpdatedAt       time.Time
}

func (r *HoursRepository) UpsertStylistHours(ctx context.Context, tx pgx.Tx, salonID, stylistID string, hours schedule.WeeklyHours) error {
	raw, err := json.Marshal(hours)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO stylist_hours (stylist_id, salon_id, weekly_hours)
		VALUES ($1, $2, $3)
		ON CONFLICT (stylist_id)
		DO UPDATE SET salon_id = EXCLUDED.salon_id,
		              weekly_hours = EXCLUDED.weekly_hours,
		              updated_at = now()
	`, stylistID, salonID, raw)
	return err
}

// GetStylistHours returns the cached template; ok is false when the
// stylist is unknown here, which callers treat as "no availability".
func (r *HoursRepository) GetStylistHours(ctx context.Context, stylistID string) (schedule.WeeklyHours, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT weekly_hours FROM stylist_hours WHERE stylist_id = $1
	`, stylistID).Scan(&raw)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var hours schedule.WeeklyHours
	if err := json.Unmarshal(raw, &hours); err != nil {
		// A corrupt cached template means no availability, not an
		// error the booking page should surface.
		return nil, false, nil
	}
	return hours, true, nil
}

func (r *HoursRepository) ReplaceTimeOff(ctx context.Context, tx pgx.Tx, stylistID string, blocks []schedule.Interval) error {
	if _, err := tx.Exec(ctx, `DELETE FROM stylist_time_off WHERE stylist_id = $1`, stylistID); err != nil {
		return err
	}
	for _, b := range blocks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO stylist_time_off (stylist_id, start_time, end_time)
			VALUES ($1, $2, $3)
		`, stylistID, b.Start, b.End); err != nil {
			return err
		}
	}
	return nil
}

func (r *HoursRepository) TimeOffInRange(ctx context.Context, stylistID string, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM stylist_time_off
		WHERE stylist_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`, stylistID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (r *HoursRepository) UpsertSalonSettings(ctx context.Context, tx pgx.Tx, s SalonSettings) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO salon_settings (salon_id, timezone, slot_step_minutes, deposit_required, deposit_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (salon_id)
		DO UPDATE SET timezone = EXCLUDED.timezone,
		              slot_step_minutes = EXCLUDED.slot_step_minutes,
		              deposit_required = EXCLUDED.deposit_required,
		              deposit_amount = EXCLUDED.deposit_amount,
		              updated_at = now()
	`, s.SalonID, s.Timezone, s.SlotStepMin, s.DepositRequired, s.DepositAmount)
	return err
}

// GetSalonSettings returns cached settings, falling back to UTC and the
// 15 minute default step for salons that have not synced yet.
func (r *HoursRepository) GetSalonSettings(ctx context.Context, salonID string) (SalonSettings, error) {
	s := SalonSettings{SalonID: salonID, Timezone: "UTC", SlotStepMin: 15}
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, slot_step_minutes, deposit_required, deposit_amount, updated_at
		FROM salon_settings
		WHERE salon_id = $1
	`, salonID).Scan(&s.Timezone, &s.SlotStepMin, &s.DepositRequired, &s.DepositAmount, &s.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return s, nil
		}
		return s, err
	}
	if s.SlotStepMin <= 0 {
		s.SlotStepMin = 15
	}
	return s, nil
}
