package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload []byte) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_type, aggregate_id, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5)
	`, eventType, aggregateID, payload, traceparent, tracestate)
	return err
}

type Publisher struct {
	pool   *db.Pool
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(pool *db.Pool, writer *kafka.Writer, logger *slog.Logger) *Publisher {
	return &Publisher{pool: pool, writer: writer, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishNext(ctx); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

func (p *Publisher) publishNext(ctx context.Context) error {
	for {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return err
		}
		var (
			eventID, eventType, aggregateID string
			payload                         []byte
			traceparent, tracestate         string
		)
		err = tx.QueryRow(ctx, `
			SELECT event_id::text, event_type, aggregate_id::text, payload, traceparent, tracestate
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`).Scan(&eventID, &eventType, &aggregateID, &payload, &traceparent, &tracestate)
		if err != nil {
			tx.Rollback(ctx)
			if err == pgx.ErrNoRows {
				return nil
			}
			return err
		}
		msg := kafkax.EventMessage(eventID, eventType, aggregateID, payload, traceparent, tracestate)
		if err := kafkax.WriteWithRetry(ctx, p.writer, msg); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE event_id = $1`, eventID); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
}
