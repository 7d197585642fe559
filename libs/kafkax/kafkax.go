// Package kafkax holds the kafka-go plumbing shared by the services:
// writer/reader construction and the message header conventions used by
// the outbox publishers and inbox consumers.
package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter builds a writer for one topic. The outbox publishers rely on
// RequireAll acks so a published row is durably in the log before being
// marked published.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewReader builds a consumer-group reader for one topic.
func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // explicit commits only
	})
}

// Header returns the value of a message header, or "".
func Header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// EventMessage assembles a message in the platform convention: key is the
// aggregate id, headers carry event identity and trace context.
func EventMessage(eventID, eventType, aggregateID string, payload []byte, traceparent, tracestate string) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(eventID)},
		{Key: "event_type", Value: []byte(eventType)},
	}
	if traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}
	return kafka.Message{
		Key:     []byte(aggregateID),
		Value:   payload,
		Headers: headers,
	}
}

// WriteWithRetry publishes messages, retrying transient failures with a
// short fixed backoff. Gives up when ctx is cancelled.
func WriteWithRetry(ctx context.Context, w *kafka.Writer, msgs ...kafka.Message) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = w.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return err
}
