package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/salonbookhq/salonbook/libs/db"
)

type Event struct {
	ID        string          `json:"id"`
	SalonID   string          `json:"salon_id"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

type Repository struct {
	pool   *db.Pool
	logger *slog.Logger
}

func NewRepository(pool *db.Pool, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Record writes an audit row. Failures are logged, not returned; the
// operation being audited must not fail because auditing did.
func (r *Repository) Record(ctx context.Context, salonID, actorID, action string, detail any) {
	raw, err := json.Marshal(detail)
	if err != nil {
		r.logger.Error("audit detail marshal failed", "action", action, "err", err)
		raw = []byte("{}")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_events (salon_id, actor_id, action, detail)
		VALUES ($1, $2, $3, $4)
	`, salonID, actorID, action, raw)
	if err != nil {
		r.logger.Error("audit write failed", "action", action, "err", err)
	}
}

func (r *Repository) ListForSalon(ctx context.Context, salonID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, actor_id::text, action, detail, created_at
		FROM audit_events
		WHERE salon_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, salonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SalonID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
