// Package dispatch fans a due reminder out to every channel the client
// can be reached on and records the outcome per channel.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/email"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/sms"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/storage"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/whatsapp"
)

type Dispatcher struct {
	repo     *storage.Repository
	email    *email.Sender
	sms      sms.Sender
	whatsapp *whatsapp.Sender
	events   *kafka.Writer
	logger   *slog.Logger
	newID    func() string
}

func New(repo *storage.Repository, emailSender *email.Sender, smsSender sms.Sender, waSender *whatsapp.Sender, events *kafka.Writer, logger *slog.Logger, newID func() string) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		email:    emailSender,
		sms:      smsSender,
		whatsapp: waSender,
		events:   events,
		logger:   logger,
		newID:    newID,
	}
}

// Run consumes one topic until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("fetch message failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		msgCtx := otelx.ContextFromTraceStrings(ctx, kafkax.Header(msg, "traceparent"), kafkax.Header(msg, "tracestate"))
		if err := d.handle(msgCtx, msg); err != nil {
			d.logger.Error("event handling failed", "event_type", kafkax.Header(msg, "event_type"), "err", err)
			time.Sleep(time.Second)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			d.logger.Error("commit offset failed", "err", err)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg kafka.Message) error {
	eventID := kafkax.Header(msg, "event_id")
	eventType := kafkax.Header(msg, "event_type")

	tx, err := d.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := d.repo.MarkProcessed(ctx, tx, eventID, eventType)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit(ctx)
	}

	switch eventType {
	case "salon.client.upserted.v1":
		var evt struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := d.repo.UpsertContactTx(ctx, tx, storage.ClientContact{
			ClientID: evt.ID, Name: evt.Name, Phone: evt.Phone, Email: evt.Email,
		}); err != nil {
			return err
		}

	case "scheduler.reminder.due.v1":
		var evt struct {
			BookingGroupID string    `json:"booking_group_id"`
			ClientID       string    `json:"client_id"`
			AppointmentAt  time.Time `json:"appointment_at"`
		}
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return err
		}
		if err := d.remind(ctx, tx, evt.BookingGroupID, evt.ClientID, evt.AppointmentAt); err != nil {
			return err
		}

	default:
		d.logger.Debug("ignoring event", "event_type", eventType)
	}

	return tx.Commit(ctx)
}

func (d *Dispatcher) remind(ctx context.Context, tx pgx.Tx, groupID, clientID string, at time.Time) error {
	contact, ok, err := d.repo.GetContact(ctx, clientID)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Warn("no contact mirror for client, reminder skipped", "client_id", clientID)
		return d.repo.RecordTx(ctx, tx, storage.Notification{
			BookingGroupID: groupID, Channel: "email", Recipient: "", Status: "skipped",
			Error: "unknown client",
		})
	}
	text := reminderText(contact.Name, at)

	if contact.Email != "" {
		status, errText := "sent", ""
		if err := d.email.Send(contact.Email, "Appointment reminder", text); err != nil {
			status, errText = "failed", err.Error()
		}
		if err := d.repo.RecordTx(ctx, tx, storage.Notification{
			BookingGroupID: groupID, Channel: "email", Recipient: contact.Email,
			Status: status, Error: errText,
		}); err != nil {
			return err
		}
		d.emit(ctx, "notification."+status+".v1", groupID, "email", status)
	}

	if contact.Phone != "" {
		status, errText := "sent", ""
		if err := d.sms.Send(ctx, contact.Phone, text); err != nil {
			status, errText = "failed", err.Error()
		}
		if err := d.repo.RecordTx(ctx, tx, storage.Notification{
			BookingGroupID: groupID, Channel: "sms", Recipient: contact.Phone,
			Status: status, Error: errText,
		}); err != nil {
			return err
		}
		d.emit(ctx, "notification."+status+".v1", groupID, "sms", status)

		if d.whatsapp.Configured() {
			status, errText = "sent", ""
			if err := d.whatsapp.Send(ctx, contact.Phone, "appointment_reminder", map[string]string{
				"name": contact.Name,
				"when": at.Format("2006-01-02 15:04"),
			}); err != nil {
				status, errText = "failed", err.Error()
			}
			if err := d.repo.RecordTx(ctx, tx, storage.Notification{
				BookingGroupID: groupID, Channel: "whatsapp", Recipient: contact.Phone,
				Status: status, Error: errText,
			}); err != nil {
				return err
			}
			d.emit(ctx, "notification."+status+".v1", groupID, "whatsapp", status)
		}
	}
	return nil
}

func (d *Dispatcher) emit(ctx context.Context, eventType, groupID, channel, status string) {
	payload, err := json.Marshal(map[string]string{
		"booking_group_id": groupID,
		"channel":          channel,
		"status":           status,
	})
	if err != nil {
		return
	}
	msg := kafkax.EventMessage(d.newID(), eventType, groupID, payload, "", "")
	if err := d.events.WriteMessages(ctx, msg); err != nil {
		d.logger.Warn("emit notification event failed", "err", err)
	}
}

func reminderText(name string, at time.Time) string {
	when := at.Format("Monday 2 January at 15:04")
	if name != "" {
		return fmt.Sprintf("Hi %s, a reminder of your salon appointment on %s. Reply to reschedule.", name, when)
	}
	return fmt.Sprintf("Reminder: your salon appointment is on %s.", when)
}
