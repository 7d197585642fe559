// Package consumer folds booking and notification events into per-salon
// daily counters. Events are deduplicated through the inbox table, so a
// redelivered message never double counts.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/services/analytics-service/internal/storage"
)

type Consumer struct {
	pool   *db.Pool
	repo   *storage.Repository
	logger *slog.Logger
	now    func() time.Time
}

func New(pool *db.Pool, repo *storage.Repository, logger *slog.Logger) *Consumer {
	return &Consumer{pool: pool, repo: repo, logger: logger, now: time.Now}
}

func (c *Consumer) Run(ctx context.Context, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			c.logger.Error("event handling failed", "err", err,
				"event_type", kafkax.Header(msg, "event_type"))
			time.Sleep(time.Second)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed", "err", err)
		}
	}
}

type eventEnvelope struct {
	BookingGroupID string `json:"booking_group_id"`
	SalonID        string `json:"salon_id"`
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	eventID := kafkax.Header(msg, "event_id")
	eventType := kafkax.Header(msg, "event_type")
	ctx = otelx.ContextFromTraceStrings(ctx,
		kafkax.Header(msg, "traceparent"), kafkax.Header(msg, "tracestate"))

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	fresh, err := c.repo.MarkProcessed(ctx, tx, eventID, eventType)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit(ctx)
	}

	var env eventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.logger.Warn("skipping undecodable event", "event_type", eventType, "err", err)
		return tx.Commit(ctx)
	}

	var counter string
	switch eventType {
	case "booking.created.v1":
		counter = storage.CounterBookingsCreated
		if env.BookingGroupID != "" && env.SalonID != "" {
			if err := c.repo.RememberGroupTx(ctx, tx, env.BookingGroupID, env.SalonID); err != nil {
				return err
			}
		}
	case "booking.confirmed.v1":
		counter = storage.CounterBookingsConfirmed
	case "booking.cancelled.v1":
		counter = storage.CounterBookingsCancelled
	case "booking.rescheduled.v1":
		counter = storage.CounterReschedules
	case "notification.sent.v1":
		counter = storage.CounterRemindersSent
	case "notification.failed.v1":
		counter = storage.CounterRemindersFailed
	default:
		return tx.Commit(ctx)
	}

	salonID := env.SalonID
	if salonID == "" && env.BookingGroupID != "" {
		salonID, err = c.repo.SalonForGroupTx(ctx, tx, env.BookingGroupID)
		if err != nil {
			return err
		}
	}
	if salonID == "" {
		c.logger.Warn("event without attributable salon", "event_type", eventType,
			"booking_group_id", env.BookingGroupID)
		return tx.Commit(ctx)
	}

	if err := c.repo.BumpDailyTx(ctx, tx, salonID, c.now().UTC(), counter); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
