package booking

import (
	"context"
	"fmt"
	"time"

	"tour-booking/internal/logger"
	"tour-booking/internal/models"
)

type ExpiryStore interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	CancelBooking(ctx context.Context, b *models.Booking, from []models.BookingStatus) (bool, error)
}

// Sweeper cancels pending_payment bookings that were abandoned at checkout.
// The payment intent is voided first; if that fails the booking is left for
// the webhook, because the customer may already have paid.
type Sweeper struct {
	Store    ExpiryStore
	Payments IntentCanceller
	Events   EventPublisher
	Logger   *logger.Logger
	TTL      time.Duration
	Batch    int
	// Expired, when set, is advanced by the number of bookings each sweep cancels.
	Expired interface{ Add(float64) }
	now     func() time.Time
}

func NewSweeper(store ExpiryStore, payments IntentCanceller, events EventPublisher, log *logger.Logger, ttl time.Duration) *Sweeper {
	return &Sweeper{
		Store:    store,
		Payments: payments,
		Events:   events,
		Logger:   log,
		TTL:      ttl,
		Batch:    100,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.Logger.Info("SWEEPER", fmt.Sprintf("Starting expiry sweep every %s, ttl %s", interval, s.TTL))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.Logger.Error("SWEEPER", fmt.Sprintf("sweep failed: %v", err))
		}
		select {
		case <-ctx.Done():
			s.Logger.Info("SWEEPER", "Expiry sweep stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce processes one batch and returns how many bookings it cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.TTL)
	expired, err := s.Store.ListExpiredPending(ctx, cutoff, s.Batch)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		s.Logger.Debug("SWEEPER", "No expired bookings found")
		return 0, nil
	}

	cancelled := 0
	for i := range expired {
		b := &expired[i]
		if err := s.expire(ctx, b); err != nil {
			s.Logger.Warn("SWEEPER", fmt.Sprintf("booking %s left pending: %v", b.ID, err))
			continue
		}
		cancelled++
	}
	if s.Expired != nil {
		s.Expired.Add(float64(cancelled))
	}
	s.Logger.Info("SWEEPER", fmt.Sprintf("Expired %d of %d stale bookings", cancelled, len(expired)))
	return cancelled, nil
}

func (s *Sweeper) expire(ctx context.Context, b *models.Booking) error {
	if b.NeedsAttention {
		return fmt.Errorf("flagged for manual resolution: %s", b.AttentionReason)
	}
	if b.PaymentIntentID != "" && s.Payments != nil {
		if err := s.Payments.CancelIntent(ctx, b.PaymentIntentID); err != nil {
			return fmt.Errorf("cancel intent %s: %w", b.PaymentIntentID, err)
		}
	}

	ok, err := s.Store.CancelBooking(ctx, b, []models.BookingStatus{models.StatusPendingPayment})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("status changed to something other than %s", models.StatusPendingPayment)
	}

	b.Status = models.StatusCancelled
	s.Logger.LogBooking("EXPIRED", b.ID, fmt.Sprintf("ref=%s age=%s", b.Reference, s.now().Sub(b.CreatedAt).Round(time.Second)))
	if s.Events != nil {
		if err := s.Events.PublishBookingEvent(ctx, models.EventBookingCancelled, b); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("publish expiry of %s: %v", b.ID, err))
		}
	}
	return nil
}
