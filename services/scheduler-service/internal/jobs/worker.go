package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/salonbookhq/salonbook/libs/kafkax"
)

const (
	maxAttempts = 5
	claimBatch  = 50
)

// Worker polls for due reminders and emits scheduler.reminder.due.v1.
// Jobs that fail to publish retry with linear backoff and land dead (and
// on the DLQ topic) after maxAttempts.
type Worker struct {
	repo   *Repository
	writer *kafka.Writer
	dlq    *kafka.Writer
	logger *slog.Logger
	poll   time.Duration
	now    func() time.Time
	newID  func() string
}

func NewWorker(repo *Repository, writer, dlq *kafka.Writer, logger *slog.Logger, newID func() string) *Worker {
	return &Worker{
		repo:   repo,
		writer: writer,
		dlq:    dlq,
		logger: logger,
		poll:   2 * time.Second,
		now:    time.Now,
		newID:  newID,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.tick(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("reminder tick failed", "err", err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	tx, err := w.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.repo.ClaimDue(ctx, tx, w.now(), claimBatch)
	if err != nil {
		return err
	}
	for _, job := range due {
		if err := w.dispatch(ctx, tx, job); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (w *Worker) dispatch(ctx context.Context, tx pgx.Tx, job ReminderJob) error {
	payload, err := json.Marshal(map[string]any{
		"booking_group_id": job.BookingGroupID,
		"salon_id":         job.SalonID,
		"client_id":        job.ClientID,
		"stylist_id":       job.StylistID,
		"appointment_at":   job.AppointmentAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	msg := kafkax.EventMessage(w.newID(), "scheduler.reminder.due.v1", job.BookingGroupID, payload, "", "")

	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.logger.Warn("reminder publish failed",
			"booking_group_id", job.BookingGroupID,
			"attempt", job.Attempts+1,
			"err", err)
		if job.Attempts+1 >= maxAttempts {
			if w.dlq != nil {
				if dlqErr := kafkax.WriteWithRetry(ctx, w.dlq, msg); dlqErr != nil {
					w.logger.Error("dlq publish failed", "booking_group_id", job.BookingGroupID, "err", dlqErr)
				}
			}
			return w.repo.MarkDead(ctx, tx, job.ID)
		}
		backoff := time.Duration(job.Attempts+1) * time.Minute
		return w.repo.MarkRetry(ctx, tx, job.ID, backoff)
	}

	w.logger.Info("reminder dispatched", "booking_group_id", job.BookingGroupID)
	return w.repo.MarkDone(ctx, tx, job.ID)
}
