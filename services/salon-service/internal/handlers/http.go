package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/storage"
)

// Handler owns the salon management API: profile and booking settings,
// stylists and their weekly hours, time off, the service catalog, and
// clients with notes. Every mutation that the booking side depends on
// stages an event in the same transaction.
type Handler struct {
	repo   *storage.Repository
	outbox *outbox.Repository
	logger *slog.Logger
	newID  func() string
}

func New(repo *storage.Repository, obx *outbox.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, outbox: obx, logger: logger, newID: uuid.NewString}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/salons", h.CreateSalon)
	mux.HandleFunc("GET /api/v1/salon", h.GetSalon)
	mux.HandleFunc("PUT /api/v1/salon", h.UpdateSalon)

	mux.HandleFunc("GET /api/v1/stylists", h.ListStylists)
	mux.HandleFunc("POST /api/v1/stylists", h.CreateStylist)
	mux.HandleFunc("GET /api/v1/stylists/{id}", h.GetStylist)
	mux.HandleFunc("PUT /api/v1/stylists/{id}", h.UpdateStylist)
	mux.HandleFunc("PUT /api/v1/stylists/{id}/hours", h.UpdateStylistHours)
	mux.HandleFunc("GET /api/v1/stylists/{id}/timeoff", h.ListTimeOff)
	mux.HandleFunc("POST /api/v1/stylists/{id}/timeoff", h.AddTimeOff)
	mux.HandleFunc("DELETE /api/v1/stylists/{id}/timeoff/{timeoffID}", h.DeleteTimeOff)

	mux.HandleFunc("GET /api/v1/services", h.ListServices)
	mux.HandleFunc("POST /api/v1/services", h.CreateService)
	mux.HandleFunc("PUT /api/v1/services/{id}", h.UpdateService)

	mux.HandleFunc("GET /api/v1/clients", h.SearchClients)
	mux.HandleFunc("POST /api/v1/clients", h.CreateClient)
	mux.HandleFunc("PUT /api/v1/clients/{id}", h.UpdateClient)
	mux.HandleFunc("GET /api/v1/clients/{id}/notes", h.ListClientNotes)
	mux.HandleFunc("POST /api/v1/clients/{id}/notes", h.AddClientNote)
}

func salonScope(r *http.Request) string {
	return r.Header.Get("X-Salon-Id")
}

func userScope(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// --- salon profile ---

type salonRequest struct {
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	SlotStepMinutes int    `json:"slot_step_minutes"`
	DepositRequired bool   `json:"deposit_required"`
	DepositAmount   string `json:"deposit_amount"`
}

func (req *salonRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", req.Timezone)
	}
	if req.SlotStepMinutes <= 0 {
		req.SlotStepMinutes = 15
	}
	if req.DepositRequired && req.DepositAmount == "" {
		return fmt.Errorf("deposit_amount is required when deposit_required is set")
	}
	return nil
}

func (h *Handler) CreateSalon(w http.ResponseWriter, r *http.Request) {
	var req salonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s := storage.Salon{
		ID:              h.newID(),
		Name:            req.Name,
		Timezone:        req.Timezone,
		SlotStepMinutes: req.SlotStepMinutes,
		DepositRequired: req.DepositRequired,
		DepositAmount:   req.DepositAmount,
	}
	if err := h.repo.CreateSalon(r.Context(), s); err != nil {
		h.logger.Error("create salon failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.publishSettings(r.Context(), s); err != nil {
		h.logger.Error("publish settings failed", "err", err)
	}
	httpx.WriteJSON(w, http.StatusCreated, s)
}

func (h *Handler) GetSalon(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.GetSalon(r.Context(), salonScope(r))
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "salon not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) UpdateSalon(w http.ResponseWriter, r *http.Request) {
	var req salonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s := storage.Salon{
		ID:              salonScope(r),
		Name:            req.Name,
		Timezone:        req.Timezone,
		SlotStepMinutes: req.SlotStepMinutes,
		DepositRequired: req.DepositRequired,
		DepositAmount:   req.DepositAmount,
	}
	ctx := r.Context()
	err := h.inTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.UpdateSalonTx(ctx, tx, s); err != nil {
			return err
		}
		return h.stageSettingsEvent(ctx, tx, s)
	})
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "salon not found")
			return
		}
		h.logger.Error("update salon failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

// --- stylists ---

type stylistRequest struct {
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Active      *bool           `json:"active"`
	WeeklyHours json.RawMessage `json:"weekly_hours"`
}

func (h *Handler) CreateStylist(w http.ResponseWriter, r *http.Request) {
	var req stylistRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	hours := req.WeeklyHours
	if len(hours) == 0 {
		hours = json.RawMessage(`{}`)
	} else if err := validateWeeklyHours(hours); err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	st := storage.Stylist{
		ID:          h.newID(),
		SalonID:     salonScope(r),
		Name:        req.Name,
		Phone:       req.Phone,
		Active:      req.Active == nil || *req.Active,
		WeeklyHours: hours,
	}
	if err := h.repo.CreateStylist(r.Context(), st); err != nil {
		h.logger.Error("create stylist failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.publishHours(r.Context(), st.SalonID, st.ID, hours); err != nil {
		h.logger.Error("publish hours failed", "err", err)
	}
	httpx.WriteJSON(w, http.StatusCreated, st)
}

func (h *Handler) ListStylists(w http.ResponseWriter, r *http.Request) {
	out, err := h.repo.ListStylists(r.Context(), salonScope(r))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"stylists": out})
}

func (h *Handler) GetStylist(w http.ResponseWriter, r *http.Request) {
	st, err := h.repo.GetStylist(r.Context(), salonScope(r), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "stylist not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) UpdateStylist(w http.ResponseWriter, r *http.Request) {
	var req stylistRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	st, err := h.repo.GetStylist(ctx, salonScope(r), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "stylist not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if req.Name != "" {
		st.Name = req.Name
	}
	if req.Phone != "" {
		st.Phone = req.Phone
	}
	if req.Active != nil {
		st.Active = *req.Active
	}
	err = h.inTx(ctx, func(tx pgx.Tx) error {
		return h.repo.UpdateStylistTx(ctx, tx, st)
	})
	if err != nil {
		h.logger.Error("update stylist failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// UpdateStylistHours replaces the weekly template and pushes the change
// to the booking side in the same transaction.
func (h *Handler) UpdateStylistHours(w http.ResponseWriter, r *http.Request) {
	var hours json.RawMessage
	if err := httpx.Decode(r, &hours); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateWeeklyHours(hours); err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ctx := r.Context()
	st, err := h.repo.GetStylist(ctx, salonScope(r), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "stylist not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	st.WeeklyHours = hours
	err = h.inTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.UpdateStylistTx(ctx, tx, st); err != nil {
			return err
		}
		return h.stageHoursEvent(ctx, tx, st.SalonID, st.ID, hours)
	})
	if err != nil {
		h.logger.Error("update hours failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Info("stylist hours updated", "stylist_id", st.ID)
	httpx.WriteJSON(w, http.StatusOK, st)
}

// --- time off ---

type timeOffRequest struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
}

func (h *Handler) AddTimeOff(w http.ResponseWriter, r *http.Request) {
	var req timeOffRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil || !end.After(start) {
		httpx.Error(w, http.StatusBadRequest, "end must be RFC3339 and after start")
		return
	}
	ctx := r.Context()
	stylistID := r.PathValue("id")
	if _, err := h.repo.GetStylist(ctx, salonScope(r), stylistID); err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "stylist not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	err = h.inTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.AddTimeOffTx(ctx, tx, storage.TimeOff{
			StylistID: stylistID, Start: start, End: end, Reason: req.Reason,
		}); err != nil {
			return err
		}
		return h.stageTimeOffEvent(ctx, tx, stylistID)
	})
	if err != nil {
		h.logger.Error("add time off failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("timeoffID"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid time off id")
		return
	}
	ctx := r.Context()
	stylistID := r.PathValue("id")
	err = h.inTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.DeleteTimeOffTx(ctx, tx, stylistID, id); err != nil {
			return err
		}
		return h.stageTimeOffEvent(ctx, tx, stylistID)
	})
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "time off not found")
			return
		}
		h.logger.Error("delete time off failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out []storage.TimeOff
	err := h.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = h.repo.ListTimeOffTx(ctx, tx, r.PathValue("id"))
		return err
	})
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"time_off": out})
}

// --- services catalog ---

type serviceRequest struct {
	Title           string `json:"title"`
	Category        string `json:"category"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          *bool  `json:"active"`
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.DurationMinutes <= 0 {
		httpx.Error(w, http.StatusUnprocessableEntity, "title and a positive duration_minutes are required")
		return
	}
	s := storage.Service{
		ID:              h.newID(),
		SalonID:         salonScope(r),
		Title:           req.Title,
		Category:        req.Category,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Active:          req.Active == nil || *req.Active,
	}
	ctx := r.Context()
	err := h.inTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.CreateServiceTx(ctx, tx, s); err != nil {
			return err
		}
		return h.stageCatalogEvent(ctx, tx, s.SalonID)
	})
	if err != nil {
		h.logger.Error("create service failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, s)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.DurationMinutes <= 0 {
		httpx.Error(w, http.StatusUnprocessableEntity, "title and a positive duration_minutes are required")
		return
	}
	s := storage.Service{
		ID:              r.PathValue("id"),
		SalonID:         salonScope(r),
		Title:           req.Title,
		Category:        req.Category,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Active:          req.Active == nil || *req.Active,
	}
	ctx := r.Context()
	err := h.inTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.UpdateServiceTx(ctx, tx, s); err != nil {
			return err
		}
		return h.stageCatalogEvent(ctx, tx, s.SalonID)
	})
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "service not found")
			return
		}
		h.logger.Error("update service failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	out, err := h.repo.ListServices(r.Context(), salonScope(r), activeOnly)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": out})
}

// --- clients ---

type clientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	c := storage.Client{
		ID:      h.newID(),
		SalonID: salonScope(r),
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
	}
	if err := h.repo.CreateClient(r.Context(), c); err != nil {
		h.logger.Error("create client failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.publishClient(r.Context(), c); err != nil {
		h.logger.Error("publish client failed", "err", err)
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	c := storage.Client{
		ID:      r.PathValue("id"),
		SalonID: salonScope(r),
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
	}
	if err := h.repo.UpdateClient(r.Context(), c); err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "client not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.publishClient(r.Context(), c); err != nil {
		h.logger.Error("publish client failed", "err", err)
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) SearchClients(w http.ResponseWriter, r *http.Request) {
	out, err := h.repo.SearchClients(r.Context(), salonScope(r), r.URL.Query().Get("q"), 0)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"clients": out})
}

func (h *Handler) AddClientNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "body is required")
		return
	}
	if err := h.repo.AddClientNote(r.Context(), r.PathValue("id"), userScope(r), req.Body); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) ListClientNotes(w http.ResponseWriter, r *http.Request) {
	out, err := h.repo.ListClientNotes(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notes": out})
}

// --- event staging ---

func (h *Handler) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (h *Handler) stageHoursEvent(ctx context.Context, tx pgx.Tx, salonID, stylistID string, hours json.RawMessage) error {
	payload, err := json.Marshal(map[string]any{
		"salon_id":     salonID,
		"stylist_id":   stylistID,
		"weekly_hours": hours,
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "stylist",
		AggregateID:   stylistID,
		EventType:     "salon.stylist.hours.updated.v1",
		Payload:       payload,
	})
}

func (h *Handler) publishHours(ctx context.Context, salonID, stylistID string, hours json.RawMessage) error {
	return h.inTx(ctx, func(tx pgx.Tx) error {
		return h.stageHoursEvent(ctx, tx, salonID, stylistID, hours)
	})
}

func (h *Handler) stageTimeOffEvent(ctx context.Context, tx pgx.Tx, stylistID string) error {
	blocks, err := h.repo.ListTimeOffTx(ctx, tx, stylistID)
	if err != nil {
		return err
	}
	type block struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, block{Start: b.Start, End: b.End})
	}
	payload, err := json.Marshal(map[string]any{
		"stylist_id": stylistID,
		"blocks":     out,
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "stylist",
		AggregateID:   stylistID,
		EventType:     "salon.stylist.timeoff.updated.v1",
		Payload:       payload,
	})
}

func (h *Handler) stageSettingsEvent(ctx context.Context, tx pgx.Tx, s storage.Salon) error {
	payload, err := json.Marshal(map[string]any{
		"salon_id":          s.ID,
		"timezone":          s.Timezone,
		"slot_step_minutes": s.SlotStepMinutes,
		"deposit_required":  s.DepositRequired,
		"deposit_amount":    s.DepositAmount,
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "salon",
		AggregateID:   s.ID,
		EventType:     "salon.settings.updated.v1",
		Payload:       payload,
	})
}

func (h *Handler) publishSettings(ctx context.Context, s storage.Salon) error {
	return h.inTx(ctx, func(tx pgx.Tx) error {
		return h.stageSettingsEvent(ctx, tx, s)
	})
}

// publishClient lets notification-service keep a contact mirror.
func (h *Handler) publishClient(ctx context.Context, c storage.Client) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return h.inTx(ctx, func(tx pgx.Tx) error {
		return h.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "client",
			AggregateID:   c.ID,
			EventType:     "salon.client.upserted.v1",
			Payload:       payload,
		})
	})
}

// stageCatalogEvent publishes the full active catalog, so consumers can
// replace their mirror instead of merging deltas.
func (h *Handler) stageCatalogEvent(ctx context.Context, tx pgx.Tx, salonID string) error {
	services, err := h.repo.ListServicesTx(ctx, tx, salonID, true)
	if err != nil {
		return err
	}
	type svc struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Category    string `json:"category"`
		DurationMin int    `json:"duration_minutes"`
		Price       string `json:"price"`
	}
	out := make([]svc, 0, len(services))
	for _, s := range services {
		out = append(out, svc{
			ID:          s.ID,
			Title:       s.Title,
			Category:    s.Category,
			DurationMin: s.DurationMinutes,
			Price:       s.Price,
		})
	}
	payload, err := json.Marshal(map[string]any{
		"salon_id": salonID,
		"services": out,
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "salon",
		AggregateID:   salonID,
		EventType:     "salon.catalog.updated.v1",
		Payload:       payload,
	})
}
