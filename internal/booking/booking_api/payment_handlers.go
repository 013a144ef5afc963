package booking_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"tour-booking/internal/payment"
	"tour-booking/internal/utils"
)

type PaymentIntentResponse struct {
	Success        bool     `json:"success"`
	ClientSecret   string   `json:"clientSecret"`
	IntentID       string   `json:"intentId"`
	PublishableKey string   `json:"publishableKey"`
	PaymentMethods []string `json:"paymentMethods"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req payment.CreateIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, err.Error())
		return
	}
	if req.BookingID == "" {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeMissingRequiredField, "bookingId is required")
		return
	}

	res, err := h.Payments.CreateIntent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "CreatePaymentIntent", err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.IntentsCreated.WithLabelValues(fmt.Sprint(res.Reused)).Inc()
	}

	utils.WriteJSON(w, http.StatusOK, PaymentIntentResponse{
		Success:        true,
		ClientSecret:   res.ClientSecret,
		IntentID:       res.IntentID,
		PublishableKey: res.PublishableKey,
		PaymentMethods: res.PaymentMethods,
		Amount:         res.Amount,
		Currency:       res.Currency,
	})
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxWebhookBytes
	if limit <= 0 {
		limit = 65536
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("StripeWebhook: failed to read body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, "unreadable request body")
		return
	}

	outcome, err := h.Reconciler.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("StripeWebhook: category=%s status=%d: %s",
				webhookErr.Category, webhookErr.StatusCode, webhookErr.InternalError))
			h.observeWebhook("error_" + webhookErr.Category)
			utils.WriteError(w, webhookErr.StatusCode, utils.CodeInvalidRequest, webhookErr.PublicError)
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("StripeWebhook: %v", err))
		h.observeWebhook("error_processing")
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Webhook processing error")
		return
	}

	h.observeWebhook(string(outcome))
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) observeWebhook(outcome string) {
	if h.Metrics != nil {
		h.Metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()
	}
}
