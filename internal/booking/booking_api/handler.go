package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tour-booking/internal/analytics"
	"tour-booking/internal/availability"
	"tour-booking/internal/booking"
	"tour-booking/internal/events"
	"tour-booking/internal/logger"
	"tour-booking/internal/metrics"
	"tour-booking/internal/payment"
	"tour-booking/internal/utils"
	"tour-booking/internal/voucher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Bookings   *booking.Service
	Slots      *availability.Ledger
	Payments   *payment.Service
	Reconciler *payment.Reconciler
	Analytics  *analytics.Service
	Vouchers   *voucher.Generator
	Broker     *events.Broker
	Metrics    *metrics.Metrics
	Logger     *logger.Logger

	// MaxWebhookBytes bounds the webhook body read.
	MaxWebhookBytes int64
}

// Routes mounts the public, webhook and admin APIs. admin guards /api/admin.
func (h *Handler) Routes(admin func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/{bookingId}", h.GetBooking)
			r.Get("/{bookingId}/events", h.BookingEvents)
		})

		r.Route("/tours/{tourId}", func(r chi.Router) {
			r.Get("/availability", h.ListAvailability)
			r.Post("/quote", h.Quote)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", h.CreatePaymentIntent)
			r.Post("/webhook", h.StripeWebhook)
		})

		r.Route("/vouchers/{token}", func(r chi.Router) {
			r.Get("/", h.GetVoucher)
			r.Get("/qr", h.VoucherQR)
			r.Get("/pdf", h.VoucherPDF)
		})

		r.Route("/admin", func(r chi.Router) {
			if admin != nil {
				r.Use(admin)
			}
			r.Get("/bookings", h.AdminListBookings)
			r.Put("/bookings/{bookingId}", h.AdminUpdateBooking)
			r.Delete("/bookings/{bookingId}", h.AdminDeleteBooking)
			r.Post("/bookings/{bookingId}/cancel", h.AdminCancelBooking)
			r.Post("/slots", h.AdminCreateSlot)
			r.Put("/slots/{slotId}/enabled", h.AdminSetSlotEnabled)
			r.Get("/analytics/tours", h.AdminTourSummaries)
			r.Get("/analytics/tours/{tourId}", h.AdminTourAnalytics)
		})
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(status), elapsed.String())

		if h.Metrics != nil {
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			h.Metrics.ObserveRequest(r.Method, route, fmt.Sprint(status), elapsed)
		}
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeServiceError maps domain errors to status and code. Internal errors
// are logged with detail and answered generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		message := "internal error"
		if status == http.StatusBadGateway {
			message = "payment provider unavailable, please retry"
		}
		utils.WriteError(w, status, code, message)
		return
	}
	h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrMissingRequiredField):
		return http.StatusBadRequest, utils.CodeMissingRequiredField
	case errors.Is(err, booking.ErrInvalidEmailFormat):
		return http.StatusBadRequest, utils.CodeInvalidEmailFormat
	case errors.Is(err, booking.ErrPricingValidationFailed):
		return http.StatusBadRequest, utils.CodePricingValidationFailed
	case errors.Is(err, booking.ErrInvalidSelection):
		return http.StatusBadRequest, utils.CodeInvalidSelection
	case errors.Is(err, availability.ErrInvalidSlot), errors.Is(err, availability.ErrInvalidUnits):
		return http.StatusBadRequest, utils.CodeInvalidRequest
	case errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusConflict, utils.CodeSlotUnavailable
	case errors.Is(err, availability.ErrCapacityExceeded), errors.Is(err, availability.ErrSlotDisabled):
		return http.StatusConflict, utils.CodeCapacityExceeded
	case errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusConflict, utils.CodeInvalidTransition
	case errors.Is(err, payment.ErrBookingNotPayable):
		return http.StatusConflict, utils.CodeNotPayable
	case errors.Is(err, payment.ErrIntentInProgress):
		return http.StatusConflict, utils.CodeConflict
	case errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, availability.ErrSlotNotFound):
		return http.StatusNotFound, utils.CodeNotFound
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway, utils.CodePaymentUnavailable
	default:
		return http.StatusInternalServerError, utils.CodeInternal
	}
}
