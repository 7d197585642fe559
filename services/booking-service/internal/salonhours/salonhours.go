// Package salonhours fetches stylist hours straight from the salon
// service. The event mirror is the normal source; this path covers a
// freshly deployed booking service whose mirror has not caught up yet.
package salonhours

import (
	"context"

	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

type Fetcher interface {
	StylistHours(ctx context.Context, salonID, stylistID string) (schedule.WeeklyHours, bool, error)
}
