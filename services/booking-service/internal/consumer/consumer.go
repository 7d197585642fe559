// Package consumer syncs the booking service's local mirrors from the
// rest of the platform: stylist hours, time off and salon settings from
// salon-service, and deposit payments from payments-service.
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
	"github.com/salonbookhq/salonbook/services/booking-service/internal/inbox"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/storage"
)

type Consumer struct {
	pool     *db.Pool
	hours    *storage.HoursRepository
	catalog  *storage.CatalogRepository
	bookings *storage.BookingRepository
	inbox    *inbox.Repository
	outbox   *outbox.Repository
	logger   *slog.Logger
	now      func() time.Time
}

func New(pool *db.Pool, hours *storage.HoursRepository, catalog *storage.CatalogRepository, bookings *storage.BookingRepository, ibx *inbox.Repository, obx *outbox.Repository, logger *slog.Logger) *Consumer {
	return &Consumer{pool: pool, hours: hours, catalog: catalog, bookings: bookings, inbox: ibx, outbox: obx, logger: logger, now: time.Now}
}

// WithClock swaps the wall clock for a deterministic one.
func (c *Consumer) WithClock(now func() time.Time) *Consumer {
	c.now = now
	return c
}

// Run consumes one topic until ctx is cancelled. Offsets are committed
// only after the handler transaction commits.
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
			c.logger.Error("event handling failed",
				"topic", msg.Topic,
				"event_type", kafkax.Header(msg, "event_type"),
				"err", err)
			// Leave the offset uncommitted; the message is retried
			// after rebalance or restart.
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
		c.logger.Debug("duplicate event skipped", "event_id", eventID)
		return tx.Commit(ctx)
	}

	switch eventType {
	case "salon.stylist.hours.updated.v1":
		var evt struct {
			SalonID     string               `json:"salon_id"`
			StylistID   string               `json:"stylist_id"`
			WeeklyHours schedule.WeeklyHours `json:"weekly_hours"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := c.hours.UpsertStylistHours(ctx, tx, evt.SalonID, evt.StylistID, evt.WeeklyHours); err != nil {
			return err
		}

	case "salon.stylist.timeoff.updated.v1":
		var evt struct {
			StylistID string `json:"stylist_id"`
			Blocks    []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"blocks"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		blocks := make([]schedule.Interval, 0, len(evt.Blocks))
		for _, b := range evt.Blocks {
			blocks = append(blocks, schedule.Interval{Start: b.Start, End: b.End})
		}
		if err := c.hours.ReplaceTimeOff(ctx, tx, evt.StylistID, blocks); err != nil {
			return err
		}

	case "salon.settings.updated.v1":
		var evt struct {
			SalonID         string `json:"salon_id"`
			Timezone        string `json:"timezone"`
			SlotStepMinutes int    `json:"slot_step_minutes"`
			DepositRequired bool   `json:"deposit_required"`
			DepositAmount   string `json:"deposit_amount"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := c.hours.UpsertSalonSettings(ctx, tx, storage.SalonSettings{
			SalonID:         evt.SalonID,
			Timezone:        evt.Timezone,
			SlotStepMin:     evt.SlotStepMinutes,
			DepositRequired: evt.DepositRequired,
			DepositAmount:   evt.DepositAmount,
		}); err != nil {
			return err
		}

	case "salon.catalog.updated.v1":
		var evt struct {
			SalonID  string                   `json:"salon_id"`
			Services []storage.CatalogService `json:"services"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := c.catalog.ReplaceCatalog(ctx, tx, evt.SalonID, evt.Services); err != nil {
			return err
		}

	case "payments.deposit.paid.v1":
		var evt struct {
			BookingGroupID string `json:"booking_group_id"`
			SalonID        string `json:"salon_id"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		n, err := c.bookings.MarkGroupBooked(ctx, tx, evt.BookingGroupID)
		if err != nil {
			return err
		}
		if n > 0 {
			payload, err := json.Marshal(map[string]any{
				"booking_group_id": evt.BookingGroupID,
				"salon_id":         evt.SalonID,
				"confirmed_at":     c.now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			if err := c.outbox.Insert(ctx, tx, outbox.Event{
				AggregateType: "booking_group",
				AggregateID:   evt.BookingGroupID,
				EventType:     "booking.confirmed.v1",
				Payload:       payload,
			}); err != nil {
				return err
			}
			// The reminder was held back while the deposit was pending.
			salonID, clientID, stylistID, start, _, err := c.bookings.GroupSummaryTx(ctx, tx, evt.BookingGroupID)
			if err != nil {
				return err
			}
			remindAt := start.Add(-24 * time.Hour)
			if remindAt.After(c.now()) {
				reminder, err := json.Marshal(map[string]any{
					"booking_group_id": evt.BookingGroupID,
					"salon_id":         salonID,
					"client_id":        clientID,
					"stylist_id":       stylistID,
					"start":            start.Format(time.RFC3339),
					"remind_at":        remindAt.Format(time.RFC3339),
				})
				if err != nil {
					return err
				}
				if err := c.outbox.Insert(ctx, tx, outbox.Event{
					AggregateType: "booking_group",
					AggregateID:   evt.BookingGroupID,
					EventType:     "booking.reminder.requested.v1",
					Payload:       reminder,
				}); err != nil {
					return err
				}
			}
		}

	case "payments.deposit.expired.v1":
		var evt struct {
			BookingGroupID string `json:"booking_group_id"`
			SalonID        string `json:"salon_id"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		n, err := c.bookings.CancelPendingGroupTx(ctx, tx, evt.BookingGroupID)
		if err != nil {
			return err
		}
		if n > 0 {
			payload, err := json.Marshal(map[string]any{
				"booking_group_id": evt.BookingGroupID,
				"salon_id":         evt.SalonID,
				"cancelled_at":     c.now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			if err := c.outbox.Insert(ctx, tx, outbox.Event{
				AggregateType: "booking_group",
				AggregateID:   evt.BookingGroupID,
				EventType:     "booking.cancelled.v1",
				Payload:       payload,
			}); err != nil {
				return err
			}
			c.logger.Info("released slots for expired deposit", "booking_group_id", evt.BookingGroupID)
		}

	default:
		c.logger.Warn("unknown event type", "event_type", eventType)
	}

	return tx.Commit(ctx)
}
