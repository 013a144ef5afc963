package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"tour-booking/internal/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{Writer: w, Topic: "bookings", log: logger.NewNop()}

	err := p.Publish(context.Background(), "b-1", "booking.created", map[string]string{"id": "b-1"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "b-1", string(msg.Key))
	assert.Equal(t, "booking.created", EventType(msg))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "b-1", decoded["id"])
}

func TestProducerPublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &Producer{Writer: w, Topic: "bookings", log: logger.NewNop()}

	err := p.Publish(context.Background(), "b-1", "booking.created", struct{}{})
	assert.EqualError(t, err, "broker down")
}

type scriptedReader struct {
	msgs []kafka.Message
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *scriptedReader) Close() error { return nil }

func TestConsumerRunSkipsHandlerErrors(t *testing.T) {
	reader := &scriptedReader{msgs: []kafka.Message{
		{Key: []byte("a")}, {Key: []byte("b")}, {Key: []byte("c")},
	}}
	c := &Consumer{reader: reader, topic: "bookings", log: logger.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	err := c.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		seen = append(seen, string(msg.Key))
		if len(seen) == 3 {
			cancel()
		}
		if string(msg.Key) == "b" {
			return errors.New("bad payload")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}
