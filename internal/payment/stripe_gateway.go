package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tour-booking/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeGateway creates and cancels PaymentIntents with a bounded HTTP timeout.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, timeout time.Duration, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, fmt.Errorf("%w: missing secret key", ErrGatewayUnavailable)
	}

	httpClient := &http.Client{Timeout: timeout}
	cfg := &stripe.BackendConfig{HTTPClient: httpClient}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}

	log.Info("STRIPE", fmt.Sprintf("Stripe client initialized (timeout %s)", timeout))
	return &StripeGateway{client: client.New(secretKey, backends), log: log}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount, req.Currency)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	if len(req.PaymentMethods) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(req.PaymentMethods)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("booking_reference", req.BookingReference)
	if req.CustomerName != "" {
		params.AddMetadata("customer_name", req.CustomerName)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", req.BookingID, err))
		return nil, classify(err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.client.PaymentIntents.Cancel(id, params); err != nil {
		return classify(err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Cancelled payment intent %s", id))
	return nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Metadata:     pi.Metadata,
	}
}

func classify(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
