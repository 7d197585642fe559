// Package guard makes the final commit of an appointment race-safe. The
// availability shown to a customer is a snapshot; between "show the slot"
// and "confirm" someone else can take it. The guard re-checks immediately
// before insert for a friendly conflict answer, and the storage layer's
// exclusion constraint enforces non-overlap even when two commits pass
// the re-check at the same time.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/model"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

// ErrSlotTaken is the user-visible conflict: a concurrent booking won the
// race. Callers surface it as "that time was just taken" and never retry
// automatically.
var ErrSlotTaken = errors.New("guard: slot already taken")

// Store is the booking-store port. InsertBookings must persist the batch
// atomically and return a conflict error mapped to ErrSlotTaken when the
// store's own overlap invariant rejects it.
type Store interface {
	BookingsInRange(ctx context.Context, stylistID string, from, to time.Time) ([]schedule.Interval, error)
	InsertBookings(ctx context.Context, rows []model.Booking) ([]model.Booking, error)
}

// Item is one service of a checkout cart.
type Item struct {
	ServiceID string
	Title     string
	Category  string
	Duration  time.Duration
	Price     string
}

// Guard commits booking attempts. The clock and id generator are injected
// so commits are deterministic under test.
type Guard struct {
	store Store
	now   func() time.Time
	newID func() string
}

// Option configures a Guard.
type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(g *Guard) { g.newID = newID }
}

func New(store Store, opts ...Option) *Guard {
	g := &Guard{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Commit chains the cart's services back-to-back from start, re-checks
// the store for conflicting rows over the whole chain, and inserts the
// batch. All rows share one booking group id. Returns ErrSlotTaken when
// either the re-check or the store's overlap invariant rejects the
// attempt; any other store failure propagates unchanged.
func (g *Guard) Commit(ctx context.Context, salonID, stylistID, clientID string, start time.Time, status string, items []Item) ([]model.Booking, error) {
	rows, err := g.buildRows(salonID, stylistID, clientID, start, status, items)
	if err != nil {
		return nil, err
	}
	chainEnd := rows[len(rows)-1].End

	existing, err := g.store.BookingsInRange(ctx, stylistID, start, chainEnd)
	if err != nil {
		return nil, fmt.Errorf("guard: conflict re-check: %w", err)
	}
	for _, b := range existing {
		if schedule.Overlaps(start, chainEnd, b.Start, b.End) {
			return nil, ErrSlotTaken
		}
	}

	inserted, err := g.store.InsertBookings(ctx, rows)
	if err != nil {
		// The store maps its exclusion-constraint violation to
		// ErrSlotTaken; let that through untouched.
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("guard: insert: %w", err)
	}
	return inserted, nil
}

func (g *Guard) buildRows(salonID, stylistID, clientID string, start time.Time, status string, items []Item) ([]model.Booking, error) {
	if len(items) == 0 {
		return nil, errors.New("guard: empty cart")
	}
	for _, it := range items {
		if it.Duration <= 0 {
			return nil, fmt.Errorf("guard: service %q has non-positive duration", it.ServiceID)
		}
	}
	groupID := g.newID()
	createdAt := g.now().UTC()

	rows := make([]model.Booking, 0, len(items))
	cursor := start
	for _, it := range items {
		end := cursor.Add(it.Duration)
		rows = append(rows, model.Booking{
			ID:        g.newID(),
			GroupID:   groupID,
			SalonID:   salonID,
			StylistID: stylistID,
			ClientID:  clientID,
			ServiceID: it.ServiceID,
			Title:     it.Title,
			Category:  it.Category,
			Start:     cursor,
			End:       end,
			Price:     it.Price,
			Status:    status,
			CreatedAt: createdAt,
		})
		cursor = end
	}
	return rows, nil
}
