// Package events carries booking lifecycle events to Kafka and to browsers
// waiting on a booking's status.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tour-booking/internal/kafka"
	"tour-booking/internal/models"

	kafkago "github.com/segmentio/kafka-go"
)

// BookingEvent is the payload published for every booking state change.
type BookingEvent struct {
	Type           string               `json:"type"`
	BookingID      string               `json:"bookingId"`
	Reference      string               `json:"reference"`
	Status         models.BookingStatus `json:"status"`
	TourID         string               `json:"tourId"`
	TotalRetail    float64              `json:"totalRetail"`
	Currency       string               `json:"currency"`
	NeedsAttention bool                 `json:"needsAttention,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	OccurredAt     time.Time            `json:"occurredAt"`
}

func NewBookingEvent(eventType string, b *models.Booking) BookingEvent {
	ev := BookingEvent{
		Type:           eventType,
		BookingID:      b.ID,
		Reference:      b.Reference,
		Status:         b.Status,
		TourID:         b.TourID,
		TotalRetail:    b.TotalRetail,
		Currency:       b.Currency,
		NeedsAttention: b.NeedsAttention,
		OccurredAt:     time.Now().UTC(),
	}
	switch {
	case eventType == models.EventBookingPaymentFailed:
		ev.Reason = b.LastPaymentError
	case b.NeedsAttention:
		ev.Reason = b.AttentionReason
	}
	return ev
}

type Publisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, b *models.Booking) error
}

type publisher interface {
	Publish(ctx context.Context, key, eventType string, v interface{}) error
}

// KafkaPublisher streams booking events keyed by booking id.
type KafkaPublisher struct {
	producer publisher
}

func NewKafkaPublisher(p *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) PublishBookingEvent(ctx context.Context, eventType string, b *models.Booking) error {
	return k.producer.Publish(ctx, b.ID, eventType, NewBookingEvent(eventType, b))
}

// Fanout publishes to every target and joins their errors.
type Fanout []Publisher

func (f Fanout) PublishBookingEvent(ctx context.Context, eventType string, b *models.Booking) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishBookingEvent(ctx, eventType, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Relay returns a kafka handler that forwards consumed booking events to
// the broker, so every instance can serve status streams.
func Relay(b *Broker) func(ctx context.Context, msg kafkago.Message) error {
	return func(_ context.Context, msg kafkago.Message) error {
		var ev BookingEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("decode booking event: %w", err)
		}
		if ev.BookingID == "" {
			return errors.New("booking event without booking id")
		}
		b.Emit(ev)
		return nil
	}
}
