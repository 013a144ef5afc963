package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeGateway is an in-memory Gateway for tests and local runs without a
// processor account.
type FakeGateway struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	seq      int
	Requests []IntentRequest
	Err      error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{intents: make(map[string]*Intent)}
}

func (f *FakeGateway) Name() string { return "fake" }

func (f *FakeGateway) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.seq++
	f.Requests = append(f.Requests, req)
	id := fmt.Sprintf("pi_fake_%d", f.seq)
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       ToMinorUnits(req.Amount, req.Currency),
		Currency:     strings.ToUpper(req.Currency),
		Metadata: map[string]string{
			"booking_id":        req.BookingID,
			"booking_reference": req.BookingReference,
		},
	}
	f.intents[id] = intent
	copied := *intent
	return &copied, nil
}

func (f *FakeGateway) GetIntent(_ context.Context, id string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

func (f *FakeGateway) CancelIntent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	if intent.Status == IntentStatusSucceeded {
		return fmt.Errorf("%w: intent %s already succeeded", ErrGatewayUnavailable, id)
	}
	intent.Status = IntentStatusCanceled
	return nil
}

// SetStatus moves a stored intent, e.g. to simulate a completed payment.
func (f *FakeGateway) SetStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intent, ok := f.intents[id]; ok {
		intent.Status = status
	}
}
