// Package consumer turns booking lifecycle events into reminder jobs.
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
	"github.com/salonbookhq/salonbook/services/scheduler-service/internal/inbox"
	"github.com/salonbookhq/salonbook/services/scheduler-service/internal/jobs"
)

// Reminders for rescheduled appointments keep the same lead as new ones.
const reminderLead = 24 * time.Hour

type Consumer struct {
	pool   *db.Pool
	jobs   *jobs.Repository
	inbox  *inbox.Repository
	logger *slog.Logger
}

func New(pool *db.Pool, jobsRepo *jobs.Repository, ibx *inbox.Repository, logger *slog.Logger) *Consumer {
	return &Consumer{pool: pool, jobs: jobsRepo, inbox: ibx, logger: logger}
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
		msgCtx := otelx.ContextFromTraceStrings(ctx, kafkax.Header(msg, "traceparent"), kafkax.Header(msg, "tracestate"))
		if err := c.handle(msgCtx, msg); err != nil {
			c.logger.Error("event handling failed", "event_type", kafkax.Header(msg, "event_type"), "err", err)
			time.Sleep(time.Second)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit offset failed", "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	eventID := kafkax.Header(msg, "event_id")
	eventType := kafkax.Header(msg, "event_type")

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := c.inbox.MarkProcessed(ctx, tx, eventID, eventType)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit(ctx)
	}

	switch eventType {
	case "booking.reminder.requested.v1":
		var evt struct {
			BookingGroupID string    `json:"booking_group_id"`
			SalonID        string    `json:"salon_id"`
			ClientID       string    `json:"client_id"`
			StylistID      string    `json:"stylist_id"`
			Start          time.Time `json:"start"`
			RemindAt       time.Time `json:"remind_at"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := c.jobs.InsertTx(ctx, tx, jobs.ReminderJob{
			BookingGroupID: evt.BookingGroupID,
			SalonID:        evt.SalonID,
			ClientID:       evt.ClientID,
			StylistID:      evt.StylistID,
			AppointmentAt:  evt.Start,
			RemindAt:       evt.RemindAt,
		}); err != nil {
			return err
		}
		c.logger.Info("reminder scheduled", "booking_group_id", evt.BookingGroupID, "remind_at", evt.RemindAt)

	case "booking.cancelled.v1":
		var evt struct {
			BookingGroupID string `json:"booking_group_id"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := c.jobs.CancelByGroupTx(ctx, tx, evt.BookingGroupID); err != nil {
			return err
		}

	case "booking.rescheduled.v1":
		var evt struct {
			BookingGroupID string    `json:"booking_group_id"`
			Start          time.Time `json:"start"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := c.jobs.RescheduleByGroupTx(ctx, tx, evt.BookingGroupID, evt.Start, evt.Start.Add(-reminderLead)); err != nil {
			return err
		}

	case "booking.created.v1", "booking.confirmed.v1":
		// Informational here; reminders arrive via reminder.requested.

	default:
		c.logger.Debug("ignoring event", "event_type", eventType)
	}

	return tx.Commit(ctx)
}
