package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/analytics-service/internal/storage"
)

type Handler struct {
	repo   *storage.Repository
	logger *slog.Logger
}

func New(repo *storage.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics/daily", h.Daily)
	mux.HandleFunc("GET /api/v1/analytics/summary", h.Summary)
}

func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	salonID := r.Header.Get("X-Salon-Id")
	if salonID == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing salon scope")
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = t
	}
	if to.Before(from) {
		httpx.Error(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	stats, err := h.repo.DailyRange(r.Context(), salonID, from, to)
	if err != nil {
		h.logger.Error("daily stats query failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if stats == nil {
		stats = []storage.DailyStats{}
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	salonID := r.Header.Get("X-Salon-Id")
	if salonID == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing salon scope")
		return
	}
	totals, err := h.repo.Totals(r.Context(), salonID)
	if err != nil {
		h.logger.Error("summary query failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, totals)
}
