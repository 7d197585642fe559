package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/guard"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/model"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/storage"
)

// salonID reads the salon scope the gateway injects after verifying the
// caller's token. Staff endpoints refuse requests without it.
func salonID(r *http.Request) string {
	return r.Header.Get("X-Salon-Id")
}

// List returns a salon's appointments in a window for the calendar view.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sid := salonID(r)
	if sid == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing salon scope")
		return
	}
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil || !to.After(from) {
		httpx.Error(w, http.StatusBadRequest, "to must be RFC3339 and after from")
		return
	}

	rows, err := h.bookings.ListForSalon(r.Context(), sid, from, to, q.Get("stylist_id"))
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": toDTOs(rows)})
}

type cancelRequest struct {
	BookingGroupID string `json:"booking_group_id"`
}

// cancelStore and eventStager are the slices of the repositories the
// cancel path touches.
type cancelStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CancelGroupTx(ctx context.Context, tx pgx.Tx, salonID, groupID string) (int64, error)
}

type eventStager interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// cancelGroup flips the group's live rows to cancelled and stages
// booking.cancelled.v1 in the same transaction. Either both land or
// neither does; a cancel the store kept must never go unannounced, or
// scheduler-service keeps a reminder alive for a dead appointment.
func cancelGroup(ctx context.Context, store cancelStore, events eventStager, salonID, groupID string, now time.Time) (int64, error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := store.CancelGroupTx(ctx, tx, salonID, groupID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, tx.Commit(ctx)
	}
	payload, err := json.Marshal(map[string]any{
		"booking_group_id": groupID,
		"salon_id":         salonID,
		"cancelled_at":     now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}
	if err := events.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking_group",
		AggregateID:   groupID,
		EventType:     "booking.cancelled.v1",
		Payload:       payload,
	}); err != nil {
		return 0, err
	}
	return n, tx.Commit(ctx)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	sid := salonID(r)
	if sid == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing salon scope")
		return
	}
	var req cancelRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BookingGroupID == "" {
		httpx.Error(w, http.StatusBadRequest, "booking_group_id is required")
		return
	}

	n, err := cancelGroup(r.Context(), h.bookings, h.outbox, sid, req.BookingGroupID, h.now())
	if err != nil {
		h.logger.Error("cancel failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if n == 0 {
		httpx.Error(w, http.StatusNotFound, "booking group not found")
		return
	}

	h.logger.Info("booking cancelled", "booking_group_id", req.BookingGroupID, "rows", n)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"cancelled": n})
}

type rescheduleRequest struct {
	BookingGroupID string `json:"booking_group_id"`
	NewStart       string `json:"new_start"`
	NewStylistID   string `json:"new_stylist_id"`
}

// Reschedule moves a whole booking group to a new start and optionally a
// new stylist (the calendar's drag/drop). The group's rows are removed
// and re-inserted inside one transaction, so the overlap check never
// trips over the group's own old position, and the exclusion constraint
// still guards the new one.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	sid := salonID(r)
	if sid == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing salon scope")
		return
	}
	var req rescheduleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BookingGroupID == "" {
		httpx.Error(w, http.StatusBadRequest, "booking_group_id is required")
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStart)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "new_start must be RFC3339")
		return
	}
	ctx := r.Context()

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := h.bookings.DeleteGroupTx(ctx, tx, sid, req.BookingGroupID)
	if err != nil {
		h.logger.Error("reschedule delete failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(old) == 0 {
		httpx.Error(w, http.StatusNotFound, "booking group not found")
		return
	}

	stylistID := old[0].StylistID
	if req.NewStylistID != "" {
		stylistID = req.NewStylistID
	}

	// Rebuild the chain at the new start, keeping each row's own
	// duration and order.
	moved := make([]model.Booking, len(old))
	cursor := newStart
	for i, b := range old {
		end := cursor.Add(b.Duration())
		b.StylistID = stylistID
		b.Start = cursor
		b.End = end
		moved[i] = b
		cursor = end
	}

	store := h.bookings.WithTx(tx)
	existing, err := store.BookingsInRange(ctx, stylistID, newStart, cursor)
	if err != nil {
		h.logger.Error("reschedule re-check failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(existing) > 0 {
		httpx.Error(w, http.StatusConflict, "that time was just taken, please pick another slot")
		return
	}
	if _, err := store.InsertBookings(ctx, moved); err != nil {
		if errors.Is(err, guard.ErrSlotTaken) {
			httpx.Error(w, http.StatusConflict, "that time was just taken, please pick another slot")
			return
		}
		h.logger.Error("reschedule insert failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"booking_group_id": req.BookingGroupID,
		"salon_id":         sid,
		"stylist_id":       stylistID,
		"start":            newStart.Format(time.RFC3339),
		"end":              cursor.Format(time.RFC3339),
	})
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking_group",
		AggregateID:   req.BookingGroupID,
		EventType:     "booking.rescheduled.v1",
		Payload:       payload,
	}); err != nil {
		h.logger.Error("stage reschedule event failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			httpx.Error(w, http.StatusConflict, "that time was just taken, please pick another slot")
			return
		}
		h.logger.Error("reschedule commit failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("booking rescheduled", "booking_group_id", req.BookingGroupID, "stylist_id", stylistID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": toDTOs(moved)})
}
