// Package outbox implements the transactional-outbox half of the
// service's messaging: events are written in the same transaction as the
// state change, then a background publisher drains them to Kafka.
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

type record struct {
	id          int64
	eventID     string
	aggregateID string
	eventType   string
	payload     []byte
	traceparent string
	tracestate  string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stages an event inside the caller's transaction, capturing the
// active trace context so the eventual consumer joins the same trace.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Publisher drains unpublished outbox rows to a topic. Rows are claimed
// with FOR UPDATE SKIP LOCKED so replicas can run the loop concurrently.
type Publisher struct {
	pool   *db.Pool
	writer *kafka.Writer
	logger *slog.Logger
	batch  int
	every  time.Duration
}

func NewPublisher(pool *db.Pool, writer *kafka.Writer, logger *slog.Logger) *Publisher {
	return &Publisher{
		pool:   pool,
		writer: writer,
		logger: logger,
		batch:  100,
		every:  time.Second,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drainOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox drain failed", "err", err)
			}
		}
	}
}

func (p *Publisher) drainOnce(ctx context.Context) error {
	for {
		n, err := p.publishBatch(ctx)
		if err != nil || n < p.batch {
			return err
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, p.batch)
	if err != nil {
		return 0, err
	}
	var records []record
	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.id, &rec.eventID, &rec.aggregateID, &rec.eventType, &rec.payload, &rec.traceparent, &rec.tracestate); err != nil {
			rows.Close()
			return 0, err
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, kafkax.EventMessage(rec.eventID, rec.eventType, rec.aggregateID, rec.payload, rec.traceparent, rec.tracestate))
		ids = append(ids, rec.id)
	}
	if err := kafkax.WriteWithRetry(ctx, p.writer, msgs...); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)
	`, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	p.logger.Debug("outbox batch published", "count", len(records))
	return len(records), nil
}
