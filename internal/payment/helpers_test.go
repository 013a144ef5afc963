package payment

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"tour-booking/internal/availability"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/models"
	"tour-booking/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

const testWebhookSecret = "whsec_test_secret"

func setupStore(t *testing.T) (*db.DB, *availability.Ledger) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { bunDB.Close() })

	return db.New(bunDB), availability.New(bunDB)
}

// slotWithBooked creates a slot and commits booked units against it.
func slotWithBooked(t *testing.T, ledger *availability.Ledger, capacity, booked int) string {
	ctx := context.Background()
	slot, err := ledger.CreateSlot(ctx, availability.NewSlot{
		TourID: "tour-1", Date: "2026-11-02", TimeSlot: "09:00", Capacity: capacity,
	})
	require.NoError(t, err)
	if booked > 0 {
		require.NoError(t, ledger.Commit(ctx, slot.ID, booked))
	}
	return slot.ID
}

func pendingBooking(t *testing.T, store *db.DB, slotID string, guests int) *models.Booking {
	id := uuid.New().String()
	now := time.Now().UTC()
	b := &models.Booking{
		ID:                 id,
		Reference:          "TB-261017-" + id[:8],
		Status:             models.StatusPendingPayment,
		TourID:             "tour-1",
		TourName:           "Old Town Walk",
		CustomerName:       "Ana Silva",
		CustomerEmail:      "ana@example.com",
		BookingDate:        "2026-11-02",
		TimeSlot:           "09:00",
		Language:           "en",
		TotalRetail:        1500 * float64(guests),
		TotalNet:           1100 * float64(guests),
		Currency:           "THB",
		AvailabilitySlotID: slotID,
		VoucherToken:       "token-" + id,
		CreatedAt:          now,
		UpdatedAt:          now,
		LineItems: []*models.BookingLineItem{{
			ID:                      uuid.New().String(),
			BookingID:               id,
			ItemType:                models.ItemTypeTour,
			ItemID:                  "guest",
			Name:                    "Guest",
			Quantity:                guests,
			UnitRetailPriceSnapshot: 1500,
			UnitNetPriceSnapshot:    1100,
			SubtotalRetail:          1500 * float64(guests),
			SubtotalNet:             1100 * float64(guests),
			CreatedAt:               now,
		}},
	}
	require.NoError(t, store.CreateBooking(context.Background(), b))
	return b
}

type sentMail struct {
	snapshot   notify.BookingSnapshot
	voucherURL string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendBookingConfirmation(_ context.Context, s notify.BookingSnapshot, url string, _ notify.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{snapshot: s, voucherURL: url})
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) PublishBookingEvent(_ context.Context, eventType string, _ *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordingEvents) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

// intentEvent builds a signed webhook delivery for a payment intent.
func intentEvent(t *testing.T, eventID, eventType, intentID string, amount int64, bookingID, failure string) ([]byte, string) {
	lastError := "null"
	if failure != "" {
		lastError = fmt.Sprintf(`{"message":%q,"type":"card_error"}`, failure)
	}
	payload := []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2020-08-27",
  "type": %q,
  "data": {"object": {
    "id": %q,
    "object": "payment_intent",
    "amount": %d,
    "currency": "thb",
    "status": "succeeded",
    "last_payment_error": %s,
    "metadata": {"booking_id": %q}
  }}
}`, eventID, eventType, intentID, amount, lastError, bookingID))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testWebhookSecret,
	})
	return payload, signed.Header
}
