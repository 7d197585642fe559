// Package deposits drives no-show deposit collection through Stripe
// Checkout. A deposit is created per booking group; when Stripe reports
// the session completed, payments.deposit.paid.v1 is staged so the
// booking service can flip the group from pending_deposit to booked.
package deposits

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/salonbookhq/salonbook/services/payments-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/storage"
)

const (
	EventDepositPaid    = "payments.deposit.paid.v1"
	EventDepositExpired = "payments.deposit.expired.v1"
)

// CheckoutClient is the slice of the Stripe API the service uses,
// injectable for tests.
type CheckoutClient interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClient struct{}

func (stripeClient) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

type Service struct {
	repo          *storage.Repository
	outbox        *outbox.Repository
	checkout      CheckoutClient
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        *slog.Logger
}

type Config struct {
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func NewService(repo *storage.Repository, ob *outbox.Repository, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		outbox:        ob,
		checkout:      stripeClient{},
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        logger,
	}
}

// WithCheckoutClient replaces the Stripe client, used by tests.
func (s *Service) WithCheckoutClient(c CheckoutClient) *Service {
	s.checkout = c
	return s
}

type CheckoutRequest struct {
	BookingGroupID string `json:"booking_group_id"`
	SalonID        string `json:"salon_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	Description    string `json:"description"`
}

func (r CheckoutRequest) validate() error {
	if r.BookingGroupID == "" || r.SalonID == "" {
		return fmt.Errorf("booking_group_id and salon_id are required")
	}
	if r.AmountCents <= 0 {
		return fmt.Errorf("amount_cents must be positive")
	}
	return nil
}

// CreateCheckout opens a Stripe Checkout session for the group's deposit
// and records it as pending.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (storage.Deposit, error) {
	if err := req.validate(); err != nil {
		return storage.Deposit{}, err
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	description := req.Description
	if description == "" {
		description = "Appointment deposit"
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(req.BookingGroupID),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
	}
	sess, err := s.checkout.NewSession(params)
	if err != nil {
		return storage.Deposit{}, fmt.Errorf("create checkout session: %w", err)
	}

	dep := storage.Deposit{
		BookingGroupID:  req.BookingGroupID,
		SalonID:         req.SalonID,
		AmountCents:     req.AmountCents,
		Currency:        currency,
		StripeSessionID: sess.ID,
		CheckoutURL:     sess.URL,
		Status:          storage.DepositPending,
	}
	if err := s.repo.Insert(ctx, dep); err != nil {
		return storage.Deposit{}, fmt.Errorf("record deposit: %w", err)
	}
	return dep, nil
}

func (s *Service) Get(ctx context.Context, groupID string) (storage.Deposit, error) {
	return s.repo.Get(ctx, groupID)
}

type depositPaidEvent struct {
	BookingGroupID string `json:"booking_group_id"`
	SalonID        string `json:"salon_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	PaidAt         string `json:"paid_at"`
}

// HandleWebhook verifies the Stripe signature and applies the event.
// Replayed events and unknown sessions are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("verify webhook signature: %w", err)
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	fresh, err := s.repo.RecordProviderEventTx(ctx, tx, event.ID, string(event.Type))
	if err != nil {
		return err
	}
	if !fresh {
		s.logger.Info("skipping replayed stripe event", "stripe_event_id", event.ID)
		return tx.Commit(ctx)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		dep, ok, err := s.repo.MarkPaidBySessionTx(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn("checkout completed for unknown or settled session", "stripe_session_id", sess.ID)
			break
		}
		body, err := json.Marshal(depositPaidEvent{
			BookingGroupID: dep.BookingGroupID,
			SalonID:        dep.SalonID,
			AmountCents:    dep.AmountCents,
			Currency:       dep.Currency,
			PaidAt:         time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, EventDepositPaid, dep.BookingGroupID, body); err != nil {
			return err
		}
		s.logger.Info("deposit paid", "booking_group_id", dep.BookingGroupID, "salon_id", dep.SalonID)
	default:
		s.logger.Debug("ignoring stripe event", "event_type", event.Type)
	}

	return tx.Commit(ctx)
}

// ExpireStale cancels deposits that stayed pending longer than maxAge and
// stages payments.deposit.expired.v1 for each so the booking service can
// release the held slots. Run periodically by main.
func (s *Service) ExpireStale(ctx context.Context, maxAge time.Duration) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	expired, err := s.repo.ExpireStale(ctx, tx, time.Now().Add(-maxAge))
	if err != nil {
		return err
	}
	for _, dep := range expired {
		body, err := json.Marshal(map[string]string{
			"booking_group_id": dep.BookingGroupID,
			"salon_id":         dep.SalonID,
			"expired_at":       time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, EventDepositExpired, dep.BookingGroupID, body); err != nil {
			return err
		}
		s.logger.Info("deposit expired", "booking_group_id", dep.BookingGroupID, "salon_id", dep.SalonID)
	}
	return tx.Commit(ctx)
}
