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

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Publisher drains outbox rows to the salon events topic. Hours and
// catalog updates are low volume, so one row at a time keeps the loop
// trivial; ordering per aggregate follows insertion order.
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
			for {
				published, err := p.publishNext(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Error("outbox publish failed", "err", err)
					}
					break
				}
				if !published {
					break
				}
			}
		}
	}
}

func (p *Publisher) publishNext(ctx context.Context) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id                       int64
		eventID, aggregateID     string
		eventType                string
		payload                  []byte
		traceparent, tracestate  string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan(&id, &eventID, &aggregateID, &eventType, &payload, &traceparent, &tracestate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	msg := kafkax.EventMessage(eventID, eventType, aggregateID, payload, traceparent, tracestate)
	if err := kafkax.WriteWithRetry(ctx, p.writer, msg); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = $1`, id); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
