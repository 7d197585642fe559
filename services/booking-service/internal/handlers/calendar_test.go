package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonbookhq/salonbook/services/booking-service/internal/outbox"
)

// fakeTx records commit/rollback so tests can see which side of the
// transaction boundary each call landed on. The embedded pgx.Tx supplies
// the rest of the interface; the cancel path never touches it.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeCancelStore struct {
	tx        *fakeTx
	rows      int64
	cancelErr error

	gotSalonID string
	gotGroupID string
}

func (s *fakeCancelStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.tx, nil
}

func (s *fakeCancelStore) CancelGroupTx(ctx context.Context, tx pgx.Tx, salonID, groupID string) (int64, error) {
	if tx != s.tx {
		return 0, errors.New("cancel ran outside the store's transaction")
	}
	s.gotSalonID = salonID
	s.gotGroupID = groupID
	return s.rows, s.cancelErr
}

type fakeStager struct {
	events    []outbox.Event
	insertErr error

	stagedAfterCommit bool
}

func (s *fakeStager) Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if tx.(*fakeTx).committed {
		s.stagedAfterCommit = true
	}
	s.events = append(s.events, evt)
	return nil
}

func TestCancelGroupStagesEventInSameTransaction(t *testing.T) {
	tx := &fakeTx{}
	store := &fakeCancelStore{tx: tx, rows: 2}
	stager := &fakeStager{}
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	n, err := cancelGroup(context.Background(), store, stager, "salon-1", "group-1", at)
	if err != nil {
		t.Fatalf("cancelGroup: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled rows = %d, want 2", n)
	}
	if !tx.committed {
		t.Fatal("transaction was not committed")
	}
	if len(stager.events) != 1 {
		t.Fatalf("staged %d events, want 1", len(stager.events))
	}
	if stager.stagedAfterCommit {
		t.Fatal("event staged after commit, not inside the transaction")
	}

	evt := stager.events[0]
	if evt.EventType != "booking.cancelled.v1" {
		t.Fatalf("event type = %q", evt.EventType)
	}
	var payload struct {
		BookingGroupID string `json:"booking_group_id"`
		SalonID        string `json:"salon_id"`
		CancelledAt    string `json:"cancelled_at"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.BookingGroupID != "group-1" || payload.SalonID != "salon-1" {
		t.Fatalf("payload scope = %q/%q", payload.SalonID, payload.BookingGroupID)
	}
	if payload.CancelledAt != at.Format(time.RFC3339) {
		t.Fatalf("cancelled_at = %q, want the injected clock's %q", payload.CancelledAt, at.Format(time.RFC3339))
	}
}

func TestCancelGroupRollsBackWhenStagingFails(t *testing.T) {
	tx := &fakeTx{}
	store := &fakeCancelStore{tx: tx, rows: 1}
	stager := &fakeStager{insertErr: errors.New("outbox insert failed")}

	_, err := cancelGroup(context.Background(), store, stager, "salon-1", "group-1", time.Now())
	if err == nil {
		t.Fatal("expected error when staging fails")
	}
	if tx.committed {
		t.Fatal("status flip committed without its event")
	}
	if !tx.rolledBack {
		t.Fatal("transaction not rolled back")
	}
}

func TestCancelGroupUnknownGroupStagesNothing(t *testing.T) {
	tx := &fakeTx{}
	store := &fakeCancelStore{tx: tx, rows: 0}
	stager := &fakeStager{}

	n, err := cancelGroup(context.Background(), store, stager, "salon-1", "missing", time.Now())
	if err != nil {
		t.Fatalf("cancelGroup: %v", err)
	}
	if n != 0 {
		t.Fatalf("cancelled rows = %d, want 0", n)
	}
	if len(stager.events) != 0 {
		t.Fatalf("staged %d events for an unknown group", len(stager.events))
	}
}
