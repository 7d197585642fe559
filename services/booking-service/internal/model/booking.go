package model

import "time"

// Booking statuses. pending_deposit rows hold the slot while a no-show
// deposit checkout is in flight; the exclusion constraint treats them the
// same as booked.
const (
	StatusPendingDeposit = "pending_deposit"
	StatusBooked         = "booked"
	StatusCancelled      = "cancelled"
	StatusCompleted      = "completed"
)

// Booking is one service row of an appointment. A multi-service checkout
// produces several rows chained back-to-back sharing one GroupID.
type Booking struct {
	ID        string
	GroupID   string
	SalonID   string
	StylistID string
	ClientID  string
	ServiceID string
	Title     string
	Category  string
	Start     time.Time
	End       time.Time
	Price     string
	Status    string
	CreatedAt time.Time
}

// Duration of the row's own service segment.
func (b Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}
