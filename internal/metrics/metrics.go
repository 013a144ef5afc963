// Package metrics exposes booking and payment counters for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"tour-booking/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	BookingsCreated    *prometheus.CounterVec
	BookingTransitions *prometheus.CounterVec
	WebhookOutcomes    *prometheus.CounterVec
	IntentsCreated     *prometheus.CounterVec
	ExpiredBookings    prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		BookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_bookings_created_total",
			Help: "Bookings created, by initial status.",
		}, []string{"status"}),
		BookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_booking_events_total",
			Help: "Booking lifecycle events published.",
		}, []string{"event"}),
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_webhook_outcomes_total",
			Help: "Processor webhook deliveries, by outcome.",
		}, []string{"outcome"}),
		IntentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_payment_intents_total",
			Help: "Payment intents handed to checkout.",
		}, []string{"reused"}),
		ExpiredBookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourbook_bookings_expired_total",
			Help: "Pending-payment bookings cancelled by the expiry sweep.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourbook_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.BookingsCreated,
		m.BookingTransitions,
		m.WebhookOutcomes,
		m.IntentsCreated,
		m.ExpiredBookings,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PublishBookingEvent counts lifecycle events; it sits in the event fanout.
func (m *Metrics) PublishBookingEvent(_ context.Context, eventType string, b *models.Booking) error {
	m.BookingTransitions.WithLabelValues(eventType).Inc()
	if eventType == models.EventBookingCreated {
		m.BookingsCreated.WithLabelValues(string(b.Status)).Inc()
	}
	return nil
}
