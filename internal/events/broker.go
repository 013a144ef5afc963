package events

import (
	"context"
	"sync"

	"tour-booking/internal/models"
)

// Broker manages SSE subscriptions keyed by booking id.
type Broker struct {
	mu      sync.RWMutex
	clients map[string][]chan BookingEvent
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[string][]chan BookingEvent)}
}

// Subscribe registers a client for one booking; the channel is closed when ctx is done.
func (e *Broker) Subscribe(ctx context.Context, bookingID string) <-chan BookingEvent {
	clientChan := make(chan BookingEvent, 10)

	e.mu.Lock()
	e.clients[bookingID] = append(e.clients[bookingID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(bookingID, clientChan)
	}()

	return clientChan
}

// Emit never blocks; slow clients miss events and re-read the booking.
func (e *Broker) Emit(ev BookingEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, clientChan := range e.clients[ev.BookingID] {
		select {
		case clientChan <- ev:
		default:
		}
	}
}

// PublishBookingEvent lets the broker sit in a Fanout next to Kafka.
func (e *Broker) PublishBookingEvent(_ context.Context, eventType string, b *models.Booking) error {
	e.Emit(NewBookingEvent(eventType, b))
	return nil
}

func (e *Broker) remove(bookingID string, clientChan chan BookingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[bookingID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[bookingID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[bookingID]) == 0 {
		delete(e.clients, bookingID)
	}
}

func (e *Broker) ClientCount(bookingID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[bookingID])
}
