// Package payment wraps the payment processor: intent creation for a
// booking's persisted total and reconciliation of the processor's webhooks.
package payment

import (
	"context"
	"errors"
	"math"
	"strings"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrIntentNotFound     = errors.New("payment intent not found")
)

const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

type IntentRequest struct {
	BookingID        string
	BookingReference string
	Amount           float64
	Currency         string
	CustomerEmail    string
	CustomerName     string
	Description      string
	PaymentMethods   []string
	IdempotencyKey   string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Open reports whether the customer can still pay against the intent.
func (i *Intent) Open() bool {
	return i.Status != IntentStatusSucceeded && i.Status != IntentStatusCanceled
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
	Name() string
}

var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// ToMinorUnits converts an amount to the processor's integer representation.
func ToMinorUnits(amount float64, currency string) int64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) float64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return float64(minor)
	}
	return float64(minor) / 100
}
