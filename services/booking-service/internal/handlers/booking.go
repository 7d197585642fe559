package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/guard"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/model"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/salonhours"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/storage"
)

const defaultReminderLead = 24 * time.Hour

// Handler serves the booking API: public slot listing and checkout, plus
// the staff calendar operations behind the gateway's auth.
type Handler struct {
	bookings    *storage.BookingRepository
	hours       *storage.HoursRepository
	catalog     *storage.CatalogRepository
	idempotency *storage.IdempotencyRepository
	outbox      *outbox.Repository
	fallback    salonhours.Fetcher
	logger      *slog.Logger

	// injected for tests
	now   func() time.Time
	newID func() string
}

func New(bookings *storage.BookingRepository, hours *storage.HoursRepository, catalog *storage.CatalogRepository, idem *storage.IdempotencyRepository, obx *outbox.Repository, logger *slog.Logger) *Handler {
	return &Handler{
		bookings:    bookings,
		hours:       hours,
		catalog:     catalog,
		idempotency: idem,
		outbox:      obx,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// WithHoursFallback adds a direct salon-service lookup for stylists the
// event mirror has not seen yet.
func (h *Handler) WithHoursFallback(f salonhours.Fetcher) *Handler {
	h.fallback = f
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/public/slots", h.Slots)
	mux.HandleFunc("POST /api/v1/public/book", h.Book)
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("POST /api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("POST /api/v1/appointments/reschedule", h.Reschedule)
}

type slotResponse struct {
	Start   string `json:"start"`
	Display string `json:"display"`
}

// Slots computes offerable start times for one stylist, date and cart.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	salonID := q.Get("salon_id")
	stylistID := q.Get("stylist_id")
	dateStr := q.Get("date")
	serviceIDs := splitIDs(q.Get("service_ids"))
	if salonID == "" || stylistID == "" || dateStr == "" || len(serviceIDs) == 0 {
		httpx.Error(w, http.StatusBadRequest, "salon_id, stylist_id, date and service_ids are required")
		return
	}

	ctx := r.Context()
	settings, err := h.hours.GetSalonSettings(ctx, salonID)
	if err != nil {
		h.logger.Error("load salon settings failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	dayStart, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	services, err := h.catalog.GetServices(ctx, salonID, serviceIDs)
	if err != nil {
		h.logger.Error("load services failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(services) != len(serviceIDs) {
		httpx.Error(w, http.StatusNotFound, "unknown service")
		return
	}
	var duration time.Duration
	for _, s := range services {
		duration += time.Duration(s.DurationMin) * time.Minute
	}
	if duration <= 0 {
		httpx.Error(w, http.StatusUnprocessableEntity, "cart has no duration")
		return
	}

	slots, err := h.computeSlots(ctx, salonID, stylistID, dayStart, loc, time.Duration(settings.SlotStepMin)*time.Minute, duration)
	if err != nil {
		h.logger.Error("compute slots failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			Start:   s.Start.Format(time.RFC3339),
			Display: s.Start.In(loc).Format("15:04"),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":             dateStr,
		"stylist_id":       stylistID,
		"duration_minutes": int(duration / time.Minute),
		"slots":            out,
	})
}

// computeSlots runs the pure pipeline: weekly template to windows to
// candidates, minus bookings and time off, minus the past when the
// requested day is today.
func (h *Handler) computeSlots(ctx context.Context, salonID, stylistID string, dayStart time.Time, loc *time.Location, step, duration time.Duration) ([]schedule.Slot, error) {
	weekly, ok, err := h.hours.GetStylistHours(ctx, stylistID)
	if err != nil {
		return nil, err
	}
	if !ok && h.fallback != nil {
		weekly, ok, err = h.fallback.StylistHours(ctx, salonID, stylistID)
		if err != nil {
			h.logger.Warn("hours fallback failed", "err", err, "stylist_id", stylistID)
			ok = false
		}
	}
	if !ok {
		return nil, nil
	}

	windows := schedule.WindowsForWeekday(weekly, dayStart.Weekday())
	slots := schedule.BuildSlots(dayStart, windows, step, duration)
	if len(slots) == 0 {
		return nil, nil
	}

	dayEnd := dayStart.Add(24 * time.Hour)
	busy, err := h.bookings.BookingsInRange(ctx, stylistID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	timeOff, err := h.hours.TimeOffInRange(ctx, stylistID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	slots = schedule.FilterBusy(slots, duration, append(busy, timeOff...))

	now := h.now().In(loc)
	if now.Year() == dayStart.Year() && now.YearDay() == dayStart.YearDay() {
		slots = schedule.FilterPast(slots, now)
	}
	return slots, nil
}

type bookRequest struct {
	SalonID    string   `json:"salon_id"`
	StylistID  string   `json:"stylist_id"`
	ClientID   string   `json:"client_id"`
	ServiceIDs []string `json:"service_ids"`
	Start      string   `json:"start"`
}

type bookResponse struct {
	BookingGroupID string           `json:"booking_group_id"`
	Status         string           `json:"status"`
	DepositDue     bool             `json:"deposit_due"`
	DepositAmount  string           `json:"deposit_amount,omitempty"`
	Appointments   []appointmentDTO `json:"appointments"`
}

// Book commits a multi-service checkout. The guard's re-check and the
// insert run in one transaction with the idempotency record and the
// outbox events; the appointments exclusion constraint backs the whole
// thing up against concurrent submissions.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SalonID == "" || req.StylistID == "" || len(req.ServiceIDs) == 0 {
		httpx.Error(w, http.StatusBadRequest, "salon_id, stylist_id and service_ids are required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	ctx := r.Context()

	if !start.After(h.now()) {
		httpx.Error(w, http.StatusUnprocessableEntity, "cannot book a past time")
		return
	}

	services, err := h.catalog.GetServices(ctx, req.SalonID, req.ServiceIDs)
	if err != nil {
		h.logger.Error("load services failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(services) != len(req.ServiceIDs) {
		httpx.Error(w, http.StatusNotFound, "unknown service")
		return
	}
	items := make([]guard.Item, 0, len(services))
	for _, s := range services {
		items = append(items, guard.Item{
			ServiceID: s.ID,
			Title:     s.Title,
			Category:  s.Category,
			Duration:  time.Duration(s.DurationMin) * time.Minute,
			Price:     s.Price,
		})
	}

	settings, err := h.hours.GetSalonSettings(ctx, req.SalonID)
	if err != nil {
		h.logger.Error("load salon settings failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := model.StatusBooked
	if settings.DepositRequired {
		status = model.StatusPendingDeposit
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = h.newID()
	}

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		h.logger.Error("begin tx failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		stored, storedStatus, done, err := h.idempotency.Claim(ctx, tx, idemKey)
		if err != nil {
			h.logger.Error("idempotency claim failed", "err", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		if done {
			if err := tx.Commit(ctx); err != nil {
				h.logger.Error("commit failed", "err", err)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(storedStatus)
			_, _ = w.Write(stored)
			return
		}
	}

	g := guard.New(h.bookings.WithTx(tx), guard.WithClock(h.now), guard.WithIDGenerator(h.newID))
	rows, err := g.Commit(ctx, req.SalonID, req.StylistID, clientID, start, status, items)
	if err != nil {
		if errors.Is(err, guard.ErrSlotTaken) {
			httpx.Error(w, http.StatusConflict, "that time was just taken, please pick another slot")
			return
		}
		h.logger.Error("booking commit failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.stageBookingEvents(ctx, tx, rows, status); err != nil {
		h.logger.Error("stage events failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := bookResponse{
		BookingGroupID: rows[0].GroupID,
		Status:         status,
		DepositDue:     status == model.StatusPendingDeposit,
		Appointments:   toDTOs(rows),
	}
	if resp.DepositDue {
		resp.DepositAmount = settings.DepositAmount
	}
	body, err := json.Marshal(resp)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if idemKey != "" {
		if err := h.idempotency.Complete(ctx, tx, idemKey, http.StatusCreated, body); err != nil {
			h.logger.Error("idempotency complete failed", "err", err)
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		// The exclusion constraint can reject deferred work at commit.
		if storage.IsConflict(err) {
			httpx.Error(w, http.StatusConflict, "that time was just taken, please pick another slot")
			return
		}
		h.logger.Error("commit failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("booking committed",
		"booking_group_id", resp.BookingGroupID,
		"stylist_id", req.StylistID,
		"services", len(rows),
		"status", status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// stageBookingEvents writes the created event and, for confirmed
// bookings, the reminder request into the outbox within tx.
func (h *Handler) stageBookingEvents(ctx context.Context, tx pgx.Tx, rows []model.Booking, status string) error {
	first, last := rows[0], rows[len(rows)-1]
	created, err := json.Marshal(map[string]any{
		"booking_group_id": first.GroupID,
		"salon_id":         first.SalonID,
		"stylist_id":       first.StylistID,
		"client_id":        first.ClientID,
		"start":            first.Start.Format(time.RFC3339),
		"end":              last.End.Format(time.RFC3339),
		"status":           status,
		"services":         len(rows),
	})
	if err != nil {
		return err
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking_group",
		AggregateID:   first.GroupID,
		EventType:     "booking.created.v1",
		Payload:       created,
	}); err != nil {
		return err
	}

	// A pending-deposit booking is reminded only once payments confirm
	// it; the consumer enqueues the reminder on deposit.paid.
	if status != model.StatusBooked {
		return nil
	}
	remindAt := first.Start.Add(-defaultReminderLead)
	if !remindAt.After(h.now()) {
		return nil
	}
	reminder, err := json.Marshal(map[string]any{
		"booking_group_id": first.GroupID,
		"salon_id":         first.SalonID,
		"client_id":        first.ClientID,
		"stylist_id":       first.StylistID,
		"start":            first.Start.Format(time.RFC3339),
		"remind_at":        remindAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking_group",
		AggregateID:   first.GroupID,
		EventType:     "booking.reminder.requested.v1",
		Payload:       reminder,
	})
}

type appointmentDTO struct {
	ID        string `json:"id"`
	GroupID   string `json:"booking_group_id"`
	StylistID string `json:"stylist_id"`
	ClientID  string `json:"client_id"`
	ServiceID string `json:"service_id"`
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Price     string `json:"price"`
	Status    string `json:"status"`
}

func toDTOs(rows []model.Booking) []appointmentDTO {
	out := make([]appointmentDTO, 0, len(rows))
	for _, b := range rows {
		out = append(out, appointmentDTO{
			ID:        b.ID,
			GroupID:   b.GroupID,
			StylistID: b.StylistID,
			ClientID:  b.ClientID,
			ServiceID: b.ServiceID,
			Title:     b.Title,
			Category:  b.Category,
			Start:     b.Start.Format(time.RFC3339),
			End:       b.End.Format(time.RFC3339),
			Price:     b.Price,
			Status:    b.Status,
		})
	}
	return out
}

func splitIDs(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
