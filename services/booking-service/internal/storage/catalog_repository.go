package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/salonbookhq/salonbook/libs/db"
)

// CatalogService is a row of the mirrored service catalog. Slot and
// checkout requests reference services by id; titles, durations and
// prices come from this mirror rather than a cross-service call.
type CatalogService struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	DurationMin int    `json:"duration_minutes"`
	Price       string `json:"price"`
}

type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ReplaceCatalog swaps a salon's mirrored catalog for the published one.
func (r *CatalogRepository) ReplaceCatalog(ctx context.Context, tx pgx.Tx, salonID string, services []CatalogService) error {
	if _, err := tx.Exec(ctx, `DELETE FROM service_catalog WHERE salon_id = $1`, salonID); err != nil {
		return err
	}
	for _, s := range services {
		if _, err := tx.Exec(ctx, `
			INSERT INTO service_catalog (id, salon_id, title, category, duration_minutes, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.ID, salonID, s.Title, s.Category, s.DurationMin, s.Price); err != nil {
			return err
		}
	}
	return nil
}

// GetServices resolves ids to catalog rows, preserving the requested
// order. Unknown ids are simply absent from the result; callers compare
// lengths to reject carts referencing services the salon does not offer.
func (r *CatalogRepository) GetServices(ctx context.Context, salonID string, ids []string) ([]CatalogService, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, title, category, duration_minutes, price
		FROM service_catalog
		WHERE salon_id = $1 AND id::text = ANY($2)
	`, salonID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]CatalogService{}
	for rows.Next() {
		var s CatalogService
		if err := rows.Scan(&s.ID, &s.Title, &s.Category, &s.DurationMin, &s.Price); err != nil {
			return nil, err
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CatalogService, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
