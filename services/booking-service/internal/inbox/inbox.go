// Package inbox deduplicates consumed events. Kafka delivers at least
// once; the inbox records processed event ids inside the handler's
// transaction so a redelivered message becomes a no-op.
package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// MarkProcessed records the event id inside tx. Returns false when the
// event was already processed, in which case the caller should skip its
// side effects and just commit the offset.
func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
