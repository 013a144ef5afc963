package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"tour-booking/internal/logger"
	"tour-booking/internal/models"
	"tour-booking/internal/utils"
)

var (
	ErrBookingNotPayable = errors.New("booking is not awaiting payment")
	ErrIntentInProgress  = errors.New("payment intent creation already in progress")
)

type BookingStore interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	SetPaymentIntent(ctx context.Context, id, intentID string) error
}

// IntentLocker serializes intent creation per booking across instances.
type IntentLocker interface {
	LockIntent(ctx context.Context, bookingID, owner string) (bool, error)
	UnlockIntent(ctx context.Context, bookingID, owner string) error
}

type Service struct {
	Store          BookingStore
	Gateway        Gateway
	Locker         IntentLocker
	Logger         *logger.Logger
	PublishableKey string
	PaymentMethods []string
}

func NewService(store BookingStore, gateway Gateway, locker IntentLocker, log *logger.Logger, publishableKey string, methods []string) *Service {
	return &Service{
		Store:          store,
		Gateway:        gateway,
		Locker:         locker,
		Logger:         log,
		PublishableKey: publishableKey,
		PaymentMethods: methods,
	}
}

// CreateIntentRequest mirrors what the checkout page sends. Only BookingID is
// trusted; the rest is compared against the stored booking.
type CreateIntentRequest struct {
	BookingID        string  `json:"bookingId"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	CustomerEmail    string  `json:"customerEmail"`
	CustomerName     string  `json:"customerName"`
	TourName         string  `json:"tourName"`
	BookingReference string  `json:"bookingReference"`
}

type IntentResult struct {
	ClientSecret   string   `json:"clientSecret"`
	IntentID       string   `json:"intentId"`
	PublishableKey string   `json:"publishableKey"`
	PaymentMethods []string `json:"paymentMethods"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	Reused         bool     `json:"-"`
}

// CreateIntent charges the booking's persisted total. An intent that is still
// open and matches that total is handed back instead of creating another.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error) {
	b, err := s.Store.GetBookingByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPendingPayment {
		return nil, fmt.Errorf("%w: booking %s is %s", ErrBookingNotPayable, b.ID, b.Status)
	}
	if req.Amount != 0 && math.Abs(req.Amount-b.TotalRetail) > 0.005 {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Client amount %.2f for booking %s ignored, charging stored total %.2f %s",
			req.Amount, b.ID, b.TotalRetail, b.Currency))
	}

	if s.Locker != nil {
		owner := utils.GenerateUUID()
		ok, err := s.Locker.LockIntent(ctx, b.ID, owner)
		if err != nil {
			// redis outage should not block checkout
			s.Logger.Warn("REDIS", fmt.Sprintf("intent lock for %s unavailable: %v", b.ID, err))
		} else if !ok {
			return nil, ErrIntentInProgress
		} else {
			defer s.Locker.UnlockIntent(context.WithoutCancel(ctx), b.ID, owner)
			// another request may have stored an intent while we waited
			if b, err = s.Store.GetBookingByID(ctx, b.ID); err != nil {
				return nil, err
			}
		}
	}

	intent, err := s.reusableIntent(ctx, b)
	if err != nil {
		return nil, err
	}
	if intent != nil {
		s.Logger.LogPayment("INTENT_REUSED", b.ID, fmt.Sprintf("intent=%s status=%s", intent.ID, intent.Status))
		return s.result(b, intent, true), nil
	}

	intent, err = s.Gateway.CreateIntent(ctx, IntentRequest{
		BookingID:        b.ID,
		BookingReference: b.Reference,
		Amount:           b.TotalRetail,
		Currency:         b.Currency,
		CustomerEmail:    b.CustomerEmail,
		CustomerName:     b.CustomerName,
		Description:      fmt.Sprintf("%s (%s)", b.TourName, b.Reference),
		PaymentMethods:   s.PaymentMethods,
		IdempotencyKey:   fmt.Sprintf("booking-%s-after-%s", b.ID, b.PaymentIntentID),
	})
	if err != nil {
		return nil, err
	}

	// stored before the client can pay so the webhook always finds its booking
	if err := s.Store.SetPaymentIntent(ctx, b.ID, intent.ID); err != nil {
		if cancelErr := s.Gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("orphaned intent %s for booking %s: %v", intent.ID, b.ID, cancelErr))
		}
		return nil, fmt.Errorf("store intent on booking %s: %w", b.ID, err)
	}

	s.Logger.LogPayment("INTENT_CREATED", b.ID, fmt.Sprintf("intent=%s amount=%d %s via %s",
		intent.ID, intent.Amount, b.Currency, s.Gateway.Name()))
	return s.result(b, intent, false), nil
}

func (s *Service) reusableIntent(ctx context.Context, b *models.Booking) (*Intent, error) {
	if b.PaymentIntentID == "" {
		return nil, nil
	}
	intent, err := s.Gateway.GetIntent(ctx, b.PaymentIntentID)
	if err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Could not load intent %s, creating a new one: %v", b.PaymentIntentID, err))
		return nil, nil
	}
	switch {
	case intent.Status == IntentStatusSucceeded:
		// the webhook has not landed yet; a second intent would charge twice
		return nil, fmt.Errorf("%w: payment for booking %s already succeeded", ErrBookingNotPayable, b.ID)
	case !intent.Open():
		return nil, nil
	case intent.Amount != ToMinorUnits(b.TotalRetail, b.Currency):
		// total was corrected by an operator
		if err := s.Gateway.CancelIntent(ctx, intent.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return intent, nil
}

func (s *Service) result(b *models.Booking, intent *Intent, reused bool) *IntentResult {
	return &IntentResult{
		ClientSecret:   intent.ClientSecret,
		IntentID:       intent.ID,
		PublishableKey: s.PublishableKey,
		PaymentMethods: s.PaymentMethods,
		Amount:         b.TotalRetail,
		Currency:       b.Currency,
		Reused:         reused,
	}
}

// CancelIntent satisfies the booking side's IntentCanceller.
func (s *Service) CancelIntent(ctx context.Context, intentID string) error {
	return s.Gateway.CancelIntent(ctx, intentID)
}
