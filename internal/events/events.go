// Package events delivers committed ledger events to downstream sinks: the
// websocket hub for live offer-book updates and a Kafka topic for other
// services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher accepts events after the owning transaction committed.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// ──────────────────────────────────────────────────────────────────────────────
// Nop / Fanout
// ──────────────────────────────────────────────────────────────────────────────

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, domain.Event) error { return nil }

// Fanout publishes to every sink and joins their errors.
type Fanout []Publisher

// Publish implements Publisher. One failing sink does not stop the others.
func (f Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Kafka
// ──────────────────────────────────────────────────────────────────────────────

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by offer (or user) so that all
// events of one offer land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	log    *zap.Logger
}

// NewKafkaPublisher builds an async kafka.Writer for cfg. Returns nil when no
// brokers are configured.
func NewKafkaPublisher(cfg config.KafkaConfig, log *zap.Logger, m *metrics.Metrics) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            5,
		BatchTimeout:           50 * time.Millisecond,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				m.RecordPublishFailure("kafka")
				log.Error("kafka delivery failed", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	log.Info("kafka publisher ready", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return NewKafkaPublisherWithWriter(w, "", log)
}

// NewKafkaPublisherWithWriter wraps an existing writer. topic is set on each
// message and must be empty when the writer already has one.
func NewKafkaPublisherWithWriter(w MessageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events.KafkaPublisher: marshal: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.Key()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
		Time: ev.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events.KafkaPublisher: write: %w", err)
	}
	p.log.Debug("event published", zap.String("type", string(ev.Type)), zap.String("key", ev.Key()))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
