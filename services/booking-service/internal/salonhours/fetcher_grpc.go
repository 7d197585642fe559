//go:build protogen

package salonhours

import (
	"context"
	"encoding/json"
	"time"

	"github.com/salonbookhq/salonbook/libs/grpcx"
	salonv1 "github.com/salonbookhq/salonbook/protos/gen/salon/v1"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

type grpcFetcher struct {
	client salonv1.SalonServiceClient
}

// NewFetcher dials the salon service. An empty addr disables the
// fallback and returns a nil Fetcher.
func NewFetcher(addr string) (Fetcher, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcFetcher{client: salonv1.NewSalonServiceClient(conn)}, nil
}

func (f *grpcFetcher) StylistHours(ctx context.Context, salonID, stylistID string) (schedule.WeeklyHours, bool, error) {
	resp, err := f.client.GetStylistHours(ctx, &salonv1.StylistHoursRequest{
		SalonId:   salonID,
		StylistId: stylistID,
	})
	if err != nil {
		return nil, false, err
	}
	var weekly schedule.WeeklyHours
	if err := json.Unmarshal([]byte(resp.GetWeeklyHoursJson()), &weekly); err != nil {
		return nil, false, nil
	}
	return weekly, true, nil
}
