package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tour-booking/internal/availability"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/logger"
	"tour-booking/internal/models"
	"tour-booking/internal/notify"
	"tour-booking/internal/voucher"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// Outcome says what a webhook delivery did. Every outcome is acknowledged.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeCapacityConflict Outcome = "capacity_conflict"
	OutcomeFailureRecorded  Outcome = "payment_failure_recorded"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeNoop             Outcome = "noop"
	OutcomeIgnored          Outcome = "ignored"
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

func processingError(msg string, err error) *WebhookError {
	return &WebhookError{
		Category:      "processing",
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Webhook processing error",
		InternalError: fmt.Sprintf("%s: %v", msg, err),
		OriginalErr:   err,
	}
}

type ReconcilerStore interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, b *models.Booking, from ...models.BookingStatus) (bool, error)
	TransitionStatus(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus) (bool, error)
	RecordPaymentFailure(ctx context.Context, id, reason string) (bool, error)
	FlagNeedsAttention(ctx context.Context, id, reason string) error
	PaymentEventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error
}

// EventMarker is a fast, lossy record of processed event ids.
type EventMarker interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, outcome string) error
}

type Mailer interface {
	SendBookingConfirmation(ctx context.Context, snapshot notify.BookingSnapshot, voucherURL string, opts notify.Options) error
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, b *models.Booking) error
}

// Reconciler applies processor webhooks to bookings. Each side effect is
// gated on the booking's stored status, so replays and concurrent
// deliveries of the same event are harmless.
type Reconciler struct {
	Store          ReconcilerStore
	Marker         EventMarker
	Mailer         Mailer
	Events         EventPublisher
	Logger         *logger.Logger
	WebhookSecret  string
	VoucherBaseURL string
}

func NewReconciler(store ReconcilerStore, marker EventMarker, mailer Mailer, events EventPublisher, log *logger.Logger, secret, voucherBaseURL string) *Reconciler {
	return &Reconciler{
		Store:          store,
		Marker:         marker,
		Mailer:         mailer,
		Events:         events,
		Logger:         log,
		WebhookSecret:  secret,
		VoucherBaseURL: voucherBaseURL,
	}
}

// Handle verifies and applies one webhook delivery. A nil error means the
// delivery should be acknowledged; *WebhookError carries the status to return.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if r.WebhookSecret == "" {
		r.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return "", &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, r.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		r.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return "", &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	eventType := string(event.Type)
	r.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event %s (%s)", event.ID, eventType))

	if r.alreadyProcessed(ctx, event.ID) {
		r.Logger.Info("WEBHOOK", fmt.Sprintf("Event %s already processed", event.ID))
		return OutcomeDuplicate, nil
	}

	var (
		outcome   Outcome
		bookingID string
	)
	switch eventType {
	case EventIntentSucceeded, EventIntentFailed, EventIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			r.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal payment intent: %v", err))
			return "", &WebhookError{
				Category:      "validation",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
				OriginalErr:   err,
			}
		}
		bookingID = pi.Metadata["booking_id"]
		outcome, err = r.applyIntentEvent(ctx, eventType, &pi)
		if err != nil {
			return "", err
		}
	default:
		r.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", eventType))
		outcome = OutcomeIgnored
	}

	r.remember(ctx, event.ID, eventType, bookingID, outcome)
	return outcome, nil
}

func (r *Reconciler) alreadyProcessed(ctx context.Context, eventID string) bool {
	if r.Marker != nil {
		seen, err := r.Marker.EventProcessed(ctx, eventID)
		if err != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("event marker lookup failed: %v", err))
		} else if seen {
			return true
		}
	}
	seen, err := r.Store.PaymentEventProcessed(ctx, eventID)
	if err != nil {
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("processed-event lookup failed: %v", err))
		return false
	}
	return seen
}

func (r *Reconciler) remember(ctx context.Context, eventID, eventType, bookingID string, outcome Outcome) {
	err := r.Store.RecordPaymentEvent(ctx, &models.PaymentEvent{
		EventID:   eventID,
		EventType: eventType,
		BookingID: bookingID,
		Outcome:   string(outcome),
	})
	if err != nil {
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("could not record event %s: %v", eventID, err))
	}
	if r.Marker != nil {
		_ = r.Marker.MarkEventProcessed(ctx, eventID, string(outcome))
	}
}

func (r *Reconciler) applyIntentEvent(ctx context.Context, eventType string, pi *stripe.PaymentIntent) (Outcome, error) {
	bookingID := pi.Metadata["booking_id"]
	if bookingID == "" {
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("Payment intent %s has no booking_id in metadata", pi.ID))
		return OutcomeIgnored, nil
	}

	b, err := r.Store.GetBookingByID(ctx, bookingID)
	if errors.Is(err, db.ErrBookingNotFound) {
		r.Logger.Error("WEBHOOK", fmt.Sprintf("Payment intent %s references unknown booking %s", pi.ID, bookingID))
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", processingError(fmt.Sprintf("load booking %s", bookingID), err)
	}

	switch eventType {
	case EventIntentSucceeded:
		return r.handleSucceeded(ctx, b, pi)
	case EventIntentFailed:
		return r.handleFailed(ctx, b, pi)
	default:
		return r.handleCanceled(ctx, b, pi)
	}
}

func (r *Reconciler) handleSucceeded(ctx context.Context, b *models.Booking, pi *stripe.PaymentIntent) (Outcome, error) {
	if pi.Amount != ToMinorUnits(b.TotalRetail, b.Currency) {
		r.flag(ctx, b, fmt.Sprintf("paid %d minor units, booking total is %.2f %s", pi.Amount, b.TotalRetail, b.Currency))
	}

	confirmed, err := r.Store.ConfirmBooking(ctx, b)
	switch {
	case errors.Is(err, availability.ErrCapacityExceeded),
		errors.Is(err, availability.ErrSlotDisabled),
		errors.Is(err, availability.ErrSlotNotFound):
		// paid but the slot filled up meanwhile; an operator has to rebook or refund
		reason := fmt.Sprintf("payment %s succeeded but capacity could not be committed: %v", pi.ID, err)
		if err := r.Store.FlagNeedsAttention(ctx, b.ID, reason); err != nil {
			return "", processingError(fmt.Sprintf("flag booking %s", b.ID), err)
		}
		b.NeedsAttention, b.AttentionReason = true, reason
		r.Logger.LogBooking("CAPACITY_CONFLICT", b.ID, reason)
		r.publish(ctx, models.EventBookingCapacityConflict, b)
		return OutcomeCapacityConflict, nil
	case err != nil:
		return "", processingError(fmt.Sprintf("confirm booking %s", b.ID), err)
	}

	if !confirmed {
		if b.Status == models.StatusCancelled {
			r.flag(ctx, b, fmt.Sprintf("payment %s succeeded for a cancelled booking", pi.ID))
		}
		r.Logger.Info("WEBHOOK", fmt.Sprintf("Booking %s already %s, nothing to do", b.ID, b.Status))
		return OutcomeDuplicate, nil
	}

	if updated, err := r.Store.GetBookingByID(ctx, b.ID); err == nil {
		b = updated
	} else {
		b.Status = models.StatusConfirmed
	}
	r.Logger.LogPayment("CONFIRMED", b.ID, fmt.Sprintf("intent=%s ref=%s", pi.ID, b.Reference))
	r.publish(ctx, models.EventBookingConfirmed, b)
	r.sendConfirmation(ctx, b)
	return OutcomeConfirmed, nil
}

func (r *Reconciler) handleFailed(ctx context.Context, b *models.Booking, pi *stripe.PaymentIntent) (Outcome, error) {
	reason := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	recorded, err := r.Store.RecordPaymentFailure(ctx, b.ID, reason)
	if err != nil {
		return "", processingError(fmt.Sprintf("record failure on %s", b.ID), err)
	}
	if !recorded {
		return OutcomeNoop, nil
	}
	b.LastPaymentError = reason
	r.Logger.LogPayment("FAILED", b.ID, fmt.Sprintf("intent=%s reason=%q", pi.ID, reason))
	r.publish(ctx, models.EventBookingPaymentFailed, b)
	return OutcomeFailureRecorded, nil
}

func (r *Reconciler) handleCanceled(ctx context.Context, b *models.Booking, pi *stripe.PaymentIntent) (Outcome, error) {
	// a cancelled intent that is no longer the booking's current one says nothing about the booking
	if b.PaymentIntentID != "" && b.PaymentIntentID != pi.ID {
		return OutcomeNoop, nil
	}
	ok, err := r.Store.TransitionStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusPendingPayment}, models.StatusCancelled)
	if err != nil {
		return "", processingError(fmt.Sprintf("cancel booking %s", b.ID), err)
	}
	if !ok {
		return OutcomeNoop, nil
	}
	b.Status = models.StatusCancelled
	r.Logger.LogPayment("CANCELLED", b.ID, fmt.Sprintf("intent=%s", pi.ID))
	r.publish(ctx, models.EventBookingCancelled, b)
	return OutcomeCancelled, nil
}

func (r *Reconciler) flag(ctx context.Context, b *models.Booking, reason string) {
	r.Logger.Warn("WEBHOOK", fmt.Sprintf("booking %s needs attention: %s", b.ID, reason))
	if err := r.Store.FlagNeedsAttention(ctx, b.ID, reason); err != nil {
		r.Logger.Error("WEBHOOK", fmt.Sprintf("flag booking %s: %v", b.ID, err))
	}
}

// sendConfirmation never fails the webhook: the payment is already captured.
func (r *Reconciler) sendConfirmation(ctx context.Context, b *models.Booking) {
	if r.Mailer == nil {
		return
	}
	url := voucher.URL(r.VoucherBaseURL, b.VoucherToken)
	opts := notify.Options{Language: b.Language, IncludeQRCode: true}
	if err := r.Mailer.SendBookingConfirmation(ctx, notify.SnapshotFromBooking(b), url, opts); err != nil {
		r.Logger.Error("EMAIL", fmt.Sprintf("confirmation for booking %s not sent: %v", b.ID, err))
		return
	}
	r.Logger.LogBooking("EMAIL_QUEUED", b.ID, fmt.Sprintf("to=%s", b.CustomerEmail))
}

func (r *Reconciler) publish(ctx context.Context, eventType string, b *models.Booking) {
	if r.Events == nil {
		return
	}
	if err := r.Events.PublishBookingEvent(ctx, eventType, b); err != nil {
		r.Logger.Warn("KAFKA", fmt.Sprintf("publish %s for %s: %v", eventType, b.ID, err))
	}
}
