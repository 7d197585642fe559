package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusDead    = "dead"
)

// ReminderJob is one scheduled reminder. The worker claims due jobs,
// emits the due event, and retries with backoff until MaxAttempts.
type ReminderJob struct {
	ID             int64
	BookingGroupID string
	SalonID        string
	ClientID       string
	StylistID      string
	AppointmentAt  time.Time
	RemindAt       time.Time
	Attempts       int
	Status         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, job ReminderJob) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_jobs (booking_group_id, salon_id, client_id, stylist_id, appointment_at, remind_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (booking_group_id) DO UPDATE
		SET appointment_at = EXCLUDED.appointment_at,
		    remind_at = EXCLUDED.remind_at,
		    attempts = 0,
		    status = 'pending',
		    updated_at = now()
	`, job.BookingGroupID, job.SalonID, job.ClientID, job.StylistID, job.AppointmentAt, job.RemindAt)
	return err
}

// CancelByGroupTx drops a pending reminder when its booking is cancelled.
func (r *Repository) CancelByGroupTx(ctx context.Context, tx pgx.Tx, groupID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM reminder_jobs
		WHERE booking_group_id = $1 AND status = 'pending'
	`, groupID)
	return err
}

// RescheduleByGroupTx moves the reminder when the appointment moves.
func (r *Repository) RescheduleByGroupTx(ctx context.Context, tx pgx.Tx, groupID string, appointmentAt, remindAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET appointment_at = $2, remind_at = $3, attempts = 0, status = 'pending', updated_at = now()
		WHERE booking_group_id = $1 AND status = 'pending'
	`, groupID, appointmentAt, remindAt)
	return err
}

// ClaimDue locks up to limit due jobs with FOR UPDATE SKIP LOCKED so
// multiple worker replicas never double-send. The caller finishes each
// job inside the same transaction.
func (r *Repository) ClaimDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]ReminderJob, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_group_id::text, salon_id::text, client_id::text, stylist_id::text,
		       appointment_at, remind_at, attempts, status
		FROM reminder_jobs
		WHERE status = 'pending' AND remind_at <= $1
		ORDER BY remind_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderJob
	for rows.Next() {
		var j ReminderJob
		if err := rows.Scan(&j.ID, &j.BookingGroupID, &j.SalonID, &j.ClientID, &j.StylistID,
			&j.AppointmentAt, &j.RemindAt, &j.Attempts, &j.Status); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *Repository) MarkDone(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs SET status = 'done', updated_at = now() WHERE id = $1
	`, id)
	return err
}

// MarkRetry bumps attempts and pushes remind_at out by backoff.
func (r *Repository) MarkRetry(ctx context.Context, tx pgx.Tx, id int64, backoff time.Duration) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = attempts + 1, remind_at = now() + $2, updated_at = now()
		WHERE id = $1
	`, id, backoff)
	return err
}

func (r *Repository) MarkDead(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs SET status = 'dead', updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
