package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/deposits"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/storage"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	deposits *deposits.Service
	logger   *slog.Logger
}

func New(svc *deposits.Service, logger *slog.Logger) *Handler {
	return &Handler{deposits: svc, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/deposits/checkout", h.CreateCheckout)
	mux.HandleFunc("GET /api/v1/deposits/{groupID}", h.GetDeposit)
	mux.HandleFunc("POST /webhooks/stripe", h.StripeWebhook)
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req deposits.CheckoutRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dep, err := h.deposits.CreateCheckout(r.Context(), req)
	if err != nil {
		h.logger.Error("create checkout failed", "err", err, "booking_group_id", req.BookingGroupID)
		httpx.Error(w, http.StatusBadGateway, "could not start checkout")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dep)
}

func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	dep, err := h.deposits.Get(r.Context(), r.PathValue("groupID"))
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "deposit not found")
			return
		}
		h.logger.Error("get deposit failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dep)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "could not read body")
		return
	}
	if err := h.deposits.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.logger.Error("stripe webhook rejected", "err", err)
		httpx.Error(w, http.StatusBadRequest, "webhook rejected")
		return
	}
	w.WriteHeader(http.StatusOK)
}
