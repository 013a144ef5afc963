package kafka

import (
	"context"
	"errors"
	"fmt"

	"tour-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
	topic  string
	log    *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, topic: topic, log: log}
}

// Run feeds messages to handle until ctx is cancelled. Handler errors are
// logged and the message is skipped.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, msg kafka.Message) error) error {
	c.log.LogKafka("CONSUMER_STARTED", c.topic, "reading messages")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", c.topic, err))
			return err
		}
		if err := handle(ctx, msg); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping message at %s[%d]@%d: %v", c.topic, msg.Partition, msg.Offset, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
