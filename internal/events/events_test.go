package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByOffer(t *testing.T) {
	w := &fakeWriter{}
	p := events.NewKafkaPublisherWithWriter(w, "afx.test", zap.NewNop())

	offerID := uuid.New()
	ev := domain.Event{
		Type:       domain.EventTradeSettled,
		UserID:     uuid.New(),
		OfferID:    &offerID,
		Amount:     decimal.RequireFromString("12.5"),
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != offerID.String() || msg.Topic != "afx.test" {
		t.Errorf("key/topic = %s/%s", msg.Key, msg.Topic)
	}
	var got domain.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != domain.EventTradeSettled || !got.Amount.Equal(ev.Amount) {
		t.Errorf("payload = %+v", got)
	}
}

func TestKafkaPublisher_NoBrokers(t *testing.T) {
	if p := events.NewKafkaPublisher(config.KafkaConfig{Topic: "x"}, zap.NewNop(), nil); p != nil {
		t.Error("expected nil publisher without brokers")
	}
}

type countingSink struct {
	n   int
	err error
}

func (c *countingSink) Publish(context.Context, domain.Event) error {
	c.n++
	return c.err
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	bad := &countingSink{err: errors.New("sink down")}
	good := &countingSink{}
	f := events.Fanout{bad, nil, good, events.Nop{}}

	err := f.Publish(context.Background(), domain.Event{Type: domain.EventOfferCreated})
	if err == nil {
		t.Error("expected joined error from failing sink")
	}
	if bad.n != 1 || good.n != 1 {
		t.Errorf("deliveries bad=%d good=%d, want 1/1", bad.n, good.n)
	}
}
