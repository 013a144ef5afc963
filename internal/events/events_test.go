package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tour-booking/internal/models"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booking() *models.Booking {
	return &models.Booking{
		ID:          "b-1",
		Reference:   "TB-261017-0A1B2C3D",
		Status:      models.StatusConfirmed,
		TourID:      "tour-1",
		TotalRetail: 4200,
		Currency:    "THB",
	}
}

func TestBrokerDeliversToSubscribersOfBooking(t *testing.T) {
	br := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := br.Subscribe(ctx, "b-1")
	other := br.Subscribe(ctx, "b-2")
	assert.Equal(t, 1, br.ClientCount("b-1"))

	require.NoError(t, br.PublishBookingEvent(ctx, models.EventBookingConfirmed, booking()))

	select {
	case ev := <-mine:
		assert.Equal(t, models.EventBookingConfirmed, ev.Type)
		assert.Equal(t, models.StatusConfirmed, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, other)
}

func TestBrokerRemovesClientOnCancel(t *testing.T) {
	br := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	ch := br.Subscribe(ctx, "b-1")
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Eventually(t, func() bool { return br.ClientCount("b-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestBrokerEmitDoesNotBlockOnFullClient(t *testing.T) {
	br := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Subscribe(ctx, "b-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			br.Emit(BookingEvent{BookingID: "b-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked")
	}
}

type recordingProducer struct {
	key, eventType string
	value          interface{}
}

func (r *recordingProducer) Publish(_ context.Context, key, eventType string, v interface{}) error {
	r.key, r.eventType, r.value = key, eventType, v
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	rec := &recordingProducer{}
	k := &KafkaPublisher{producer: rec}

	b := booking()
	b.Status = models.StatusPendingPayment
	b.LastPaymentError = "card declined"
	require.NoError(t, k.PublishBookingEvent(context.Background(), models.EventBookingPaymentFailed, b))

	assert.Equal(t, "b-1", rec.key)
	assert.Equal(t, models.EventBookingPaymentFailed, rec.eventType)
	ev := rec.value.(BookingEvent)
	assert.Equal(t, "card declined", ev.Reason)
}

type failingPublisher struct{}

func (failingPublisher) PublishBookingEvent(context.Context, string, *models.Booking) error {
	return errors.New("kafka down")
}

func TestFanoutReachesEveryTarget(t *testing.T) {
	br := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := br.Subscribe(ctx, "b-1")

	err := Fanout{failingPublisher{}, nil, br}.PublishBookingEvent(ctx, models.EventBookingCancelled, booking())
	assert.EqualError(t, err, "kafka down")
	assert.Len(t, ch, 1)
}

func TestRelay(t *testing.T) {
	br := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := br.Subscribe(ctx, "b-1")

	payload, err := json.Marshal(NewBookingEvent(models.EventBookingConfirmed, booking()))
	require.NoError(t, err)

	handle := Relay(br)
	require.NoError(t, handle(ctx, kafkago.Message{Value: payload}))
	assert.Error(t, handle(ctx, kafkago.Message{Value: []byte("{")}))
	assert.Error(t, handle(ctx, kafkago.Message{Value: []byte(`{"type":"x"}`)}))
	assert.Len(t, ch, 1)
}
