package notify

import (
	"context"
	"encoding/base64"
	"testing"

	"tour-booking/internal/logger"
	"tour-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	key, eventType string
	value          interface{}
}

func (c *capture) Publish(_ context.Context, key, eventType string, v interface{}) error {
	c.key, c.eventType, c.value = key, eventType, v
	return nil
}

func confirmedBooking() *models.Booking {
	return &models.Booking{
		ID:            "b-1",
		Reference:     "TB-261017-0A1B2C3D",
		TourName:      "Old Town Walk",
		CustomerName:  "Mai Tran",
		CustomerEmail: "mai@example.com",
		BookingDate:   "2026-11-02",
		Language:      "vi",
		Currency:      "THB",
		TotalRetail:   3600,
		LineItems: []*models.BookingLineItem{
			{ItemType: models.ItemTypeTour, Name: "Adult", Quantity: 2, UnitRetailPriceSnapshot: 1500, SubtotalRetail: 3000},
			{ItemType: models.ItemTypeUpsell, Name: "Lunch", Quantity: 2, UnitRetailPriceSnapshot: 300, SubtotalRetail: 600},
		},
	}
}

func TestSnapshotFromBookingSplitsUpsells(t *testing.T) {
	s := SnapshotFromBooking(confirmedBooking())
	require.Len(t, s.Lines, 1)
	require.Len(t, s.Upsells, 1)
	assert.Equal(t, 3000.0, s.Lines[0].Amount)
	assert.Equal(t, "Lunch", s.Upsells[0].Name)
}

func TestKafkaMailerPublishesRequest(t *testing.T) {
	c := &capture{}
	m := NewKafkaMailer(c, logger.NewNop())

	err := m.SendBookingConfirmation(context.Background(), SnapshotFromBooking(confirmedBooking()),
		"https://tours.example/voucher/tok", Options{IncludeQRCode: true})
	require.NoError(t, err)

	assert.Equal(t, "b-1", c.key)
	assert.Equal(t, TemplateBookingConfirmation, c.eventType)
	req := c.value.(*EmailRequest)
	assert.Equal(t, "mai@example.com", req.To)
	assert.Equal(t, "vi", req.Language)
	assert.Contains(t, req.Subject, "TB-261017-0A1B2C3D")

	png, err := base64.StdEncoding.DecodeString(req.QRCodePNG)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}

func TestBuildConfirmationRequiresRecipient(t *testing.T) {
	s := SnapshotFromBooking(confirmedBooking())
	s.CustomerEmail = ""
	_, err := BuildConfirmation(s, "u", Options{})
	assert.Error(t, err)
}
