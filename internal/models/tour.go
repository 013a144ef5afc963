package models

import (
	"time"

	"tour-booking/internal/pricing"

	"github.com/uptrace/bun"
)

// Tour is maintained by the catalogue admin; bookings only read it.
type Tour struct {
	bun.BaseModel `bun:"table:tours"`

	ID              string                `bun:"id,pk" json:"id"`
	Name            string                `bun:"name,notnull" json:"name"`
	Currency        string                `bun:"currency,notnull" json:"currency"`
	Pricing         pricing.Configuration `bun:"pricing,type:jsonb,notnull" json:"pricing"`
	Upsells         []pricing.Upsell      `bun:"upsells,type:jsonb" json:"upsells,omitempty"`
	RequiresSlot    bool                  `bun:"requires_slot,notnull" json:"requiresSlot"`
	RequiresPayment bool                  `bun:"requires_payment,notnull" json:"requiresPayment"`
	Active          bool                  `bun:"active,notnull" json:"active"`
	CreatedAt       time.Time             `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time             `bun:"updated_at,notnull" json:"updatedAt"`
}

type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availability_slots"`

	ID        string    `bun:"id,pk" json:"id"`
	TourID    string    `bun:"tour_id,notnull" json:"tourId"`
	Date      string    `bun:"date,notnull" json:"date"`
	TimeSlot  string    `bun:"time_slot,nullzero" json:"timeSlot,omitempty"`
	Capacity  int       `bun:"capacity,notnull" json:"capacity"`
	Booked    int       `bun:"booked,notnull" json:"booked"`
	Enabled   bool      `bun:"enabled,notnull" json:"enabled"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (s *AvailabilitySlot) Remaining() int {
	if s.Booked >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Booked
}

// PaymentEvent records processor events that have been fully handled.
type PaymentEvent struct {
	bun.BaseModel `bun:"table:payment_events"`

	EventID     string    `bun:"event_id,pk" json:"eventId"`
	EventType   string    `bun:"event_type,notnull" json:"eventType"`
	BookingID   string    `bun:"booking_id,nullzero" json:"bookingId,omitempty"`
	Outcome     string    `bun:"outcome,notnull" json:"outcome"`
	ProcessedAt time.Time `bun:"processed_at,notnull" json:"processedAt"`
}
