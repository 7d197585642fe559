package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/salonbookhq/salonbook/services/booking-service/internal/model"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/schedule"
)

// memStore holds rows in memory and enforces the overlap invariant inside
// InsertBookings under a mutex, modeling the database exclusion
// constraint.
type memStore struct {
	mu          sync.Mutex
	rows        []model.Booking
	staleChecks bool // when set, BookingsInRange always returns nothing
}

func (s *memStore) BookingsInRange(ctx context.Context, stylistID string, from, to time.Time) ([]schedule.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleChecks {
		return nil, nil
	}
	var out []schedule.Interval
	for _, b := range s.rows {
		if b.StylistID == stylistID && schedule.Overlaps(b.Start, b.End, from, to) {
			out = append(out, schedule.Interval{Start: b.Start, End: b.End})
		}
	}
	return out, nil
}

func (s *memStore) InsertBookings(ctx context.Context, rows []model.Booking) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		for _, existing := range s.rows {
			if existing.StylistID == r.StylistID && schedule.Overlaps(existing.Start, existing.End, r.Start, r.End) {
				return nil, ErrSlotTaken
			}
		}
	}
	s.rows = append(s.rows, rows...)
	return rows, nil
}

type failingStore struct {
	rangeErr  error
	insertErr error
}

func (s *failingStore) BookingsInRange(ctx context.Context, stylistID string, from, to time.Time) ([]schedule.Interval, error) {
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	return nil, nil
}

func (s *failingStore) InsertBookings(ctx context.Context, rows []model.Booking) ([]model.Booking, error) {
	return nil, s.insertErr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestCommitChainsMultiServiceCart(t *testing.T) {
	store := &memStore{}
	now := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	g := New(store, WithClock(fixedClock(now)), WithIDGenerator(sequentialIDs("id")))

	start := time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)
	rows, err := g.Commit(context.Background(), "salon-1", "stylist-1", "client-1", start, model.StatusBooked, []Item{
		{ServiceID: "svc-cut", Title: "Cut", Duration: 30 * time.Minute, Price: "35.00"},
		{ServiceID: "svc-color", Title: "Color", Duration: 45 * time.Minute, Price: "80.00"},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].GroupID == "" || rows[0].GroupID != rows[1].GroupID {
		t.Fatalf("rows do not share a group id: %q vs %q", rows[0].GroupID, rows[1].GroupID)
	}
	if !rows[0].Start.Equal(start) || !rows[0].End.Equal(start.Add(30*time.Minute)) {
		t.Fatalf("first row interval %v-%v", rows[0].Start, rows[0].End)
	}
	if !rows[1].Start.Equal(rows[0].End) || !rows[1].End.Equal(start.Add(75*time.Minute)) {
		t.Fatalf("second row not chained: %v-%v", rows[1].Start, rows[1].End)
	}
}

func TestCommitRejectsOnRecheck(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	store := &memStore{rows: []model.Booking{{
		ID: "existing", StylistID: "stylist-1",
		Start: start, End: start.Add(30 * time.Minute),
	}}}
	g := New(store)

	_, err := g.Commit(context.Background(), "salon-1", "stylist-1", "client-2", start.Add(15*time.Minute), model.StatusBooked, []Item{
		{ServiceID: "svc", Title: "Cut", Duration: 30 * time.Minute},
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("rejected commit persisted rows: %d", len(store.rows))
	}
}

func TestCommitAllowsTouchingInterval(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	store := &memStore{rows: []model.Booking{{
		ID: "existing", StylistID: "stylist-1",
		Start: start, End: start.Add(30 * time.Minute),
	}}}
	g := New(store)

	_, err := g.Commit(context.Background(), "salon-1", "stylist-1", "client-2", start.Add(30*time.Minute), model.StatusBooked, []Item{
		{ServiceID: "svc", Title: "Cut", Duration: 30 * time.Minute},
	})
	if err != nil {
		t.Fatalf("back-to-back booking rejected: %v", err)
	}
}

// Two concurrent commits for the exact same slot: the stale re-check lets
// both through, the store-level invariant admits exactly one.
func TestConcurrentCommitsSameSlot(t *testing.T) {
	store := &memStore{staleChecks: true}
	start := time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC)
	items := []Item{{ServiceID: "svc", Title: "Cut", Duration: 30 * time.Minute}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := New(store)
			_, errs[i] = g.Commit(context.Background(), "salon-1", "stylist-1", fmt.Sprintf("client-%d", i), start, model.StatusBooked, items)
		}(i)
	}
	wg.Wait()

	var committed, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrSlotTaken):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if committed != 1 || rejected != 1 {
		t.Fatalf("committed=%d rejected=%d, want exactly one of each", committed, rejected)
	}
	if len(store.rows) != 1 {
		t.Fatalf("store holds %d rows, want 1", len(store.rows))
	}
}

func TestCommitPropagatesStoreErrors(t *testing.T) {
	rangeBoom := errors.New("connection refused")
	g := New(&failingStore{rangeErr: rangeBoom})
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	items := []Item{{ServiceID: "svc", Duration: 30 * time.Minute}}

	if _, err := g.Commit(context.Background(), "s", "st", "c", start, model.StatusBooked, items); !errors.Is(err, rangeBoom) {
		t.Fatalf("re-check error not propagated: %v", err)
	}

	insertBoom := errors.New("write timeout")
	g = New(&failingStore{insertErr: insertBoom})
	if _, err := g.Commit(context.Background(), "s", "st", "c", start, model.StatusBooked, items); !errors.Is(err, insertBoom) {
		t.Fatalf("insert error not propagated: %v", err)
	}
}

func TestCommitValidatesCart(t *testing.T) {
	g := New(&memStore{})
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	if _, err := g.Commit(context.Background(), "s", "st", "c", start, model.StatusBooked, nil); err == nil {
		t.Fatal("empty cart accepted")
	}
	if _, err := g.Commit(context.Background(), "s", "st", "c", start, model.StatusBooked, []Item{{ServiceID: "svc", Duration: 0}}); err == nil {
		t.Fatal("zero-duration service accepted")
	}
}
