package voucher

import (
	"bytes"
	"testing"

	"tour-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	assert.Equal(t, "https://tours.example/voucher/abc", URL("https://tours.example/voucher/", "abc"))
	assert.Equal(t, "https://tours.example/voucher/abc", URL("https://tours.example/voucher", "abc"))
}

func TestQRCode(t *testing.T) {
	png, err := QRCode("https://tours.example/voucher/abc", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestPDF(t *testing.T) {
	g := NewGenerator("https://tours.example/voucher")
	b := &models.Booking{
		Reference:    "TB-261017-0A1B2C3D",
		Status:       models.StatusConfirmed,
		TourName:     "Temple Run Bangkok",
		CustomerName: "Ana Núñez",
		BookingDate:  "2026-11-02",
		TimeSlot:     "09:00",
		Language:     "en",
		TotalRetail:  4200,
		Currency:     "THB",
		VoucherToken: "tok",
		LineItems: []*models.BookingLineItem{
			{ItemType: models.ItemTypeTour, Name: "Adult", Quantity: 2},
			{ItemType: models.ItemTypeUpsell, Name: "Lunch", Quantity: 2},
		},
	}

	out, err := g.PDF(b)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	b.Status = models.StatusPendingPayment
	_, err = g.PDF(b)
	assert.ErrorIs(t, err, ErrNotIssued)
}
