// Package events publishes order lifecycle events after the state change has
// been committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	OrderConfirmed   = "order.confirmed"
	OrderCancelled   = "order.cancelled"
	OrderRefunded    = "order.refunded"
	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"
	ShipmentUpdated  = "shipment.updated"
)

type Event struct {
	Type    string         `json:"type"`
	OrderID string         `json:"orderId"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// publishTimeout caps how long a request waits on the broker.
const publishTimeout = 2 * time.Second

// Emit publishes e and only logs a failure; the state change it describes is
// already durable. The publish outlives a cancelled request but never runs
// longer than publishTimeout.
func Emit(ctx context.Context, pub Publisher, log *slog.Logger, e Event) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, e); err != nil {
		log.Error("[EVENTS] publish failed", "type", e.Type, "order", e.OrderID, "err", err)
	}
}

// KafkaPublisher writes events to one topic keyed by order id, so every
// event of an order lands on the same partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           publishTimeout,
		MaxAttempts:            3,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(e.OrderID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
		Time:    e.At,
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// LogPublisher only logs; used when no broker is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Log.Info("[EVENTS] "+e.Type, "order", e.OrderID, "data", e.Data)
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
