package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tour-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

// HeaderEventType carries the event name so consumers can route without decoding the value.
const HeaderEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer messageWriter
	Topic  string
	log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	})
	return &Producer{Writer: writer, Topic: topic, log: log}
}

// Publish writes v as JSON keyed by key; messages for one key stay ordered.
func (p *Producer) Publish(ctx context.Context, key, eventType string, v interface{}) error {
	msgBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   msgBytes,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}},
	})
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s to %s: %v", eventType, key, p.Topic, err))
		return err
	}
	p.log.LogKafka("PUBLISHED", p.Topic, fmt.Sprintf("%s key=%s", eventType, key))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// EventType reads the routing header of a consumed message.
func EventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}
