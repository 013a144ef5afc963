package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tour-booking/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.BookingsCreated.WithLabelValues("pending_payment").Inc()
	m.WebhookOutcomes.WithLabelValues("confirmed").Add(2)
	m.ObserveRequest("POST", "/api/bookings", "201", 15*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsCreated.WithLabelValues("pending_payment")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WebhookOutcomes.WithLabelValues("confirmed")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tourbook_bookings_created_total")
	assert.Contains(t, rec.Body.String(), "tourbook_http_request_duration_seconds")
}

func TestPublishBookingEvent(t *testing.T) {
	m := New()
	b := &models.Booking{Status: models.StatusPendingPayment}
	require.NoError(t, m.PublishBookingEvent(context.Background(), models.EventBookingCreated, b))
	require.NoError(t, m.PublishBookingEvent(context.Background(), models.EventBookingConfirmed, b))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsCreated.WithLabelValues("pending_payment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingTransitions.WithLabelValues(models.EventBookingConfirmed)))
}
