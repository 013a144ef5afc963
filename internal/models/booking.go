package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusCompleted      BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPendingPayment, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal statuses never move again.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:        {StatusPendingPayment, StatusConfirmed, StatusCancelled},
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from → to is allowed. Cancelling a confirmed
// booking is reserved for operators.
func CanTransition(from, to BookingStatus, admin bool) bool {
	if from == StatusConfirmed && to == StatusCancelled && !admin {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	EventBookingCreated          = "booking.created"
	EventBookingUpdated          = "booking.updated"
	EventBookingConfirmed        = "booking.confirmed"
	EventBookingCancelled        = "booking.cancelled"
	EventBookingDeleted          = "booking.deleted"
	EventBookingPaymentFailed    = "booking.payment_failed"
	EventBookingCapacityConflict = "booking.capacity_conflict"
)

const (
	ItemTypeTour   = "tour"
	ItemTypeUpsell = "upsell"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                  string        `bun:"id,pk" json:"id"`
	Reference           string        `bun:"reference,unique,notnull" json:"reference"`
	Status              BookingStatus `bun:"status,notnull" json:"status"`
	TourID              string        `bun:"tour_id,notnull" json:"tourId"`
	TourName            string        `bun:"tour_name" json:"tourName"`
	CustomerName        string        `bun:"customer_name,notnull" json:"customerName"`
	CustomerEmail       string        `bun:"customer_email,notnull" json:"customerEmail"`
	CustomerPhone       string        `bun:"customer_phone,nullzero" json:"customerPhone,omitempty"`
	CustomerNationality string        `bun:"customer_nationality,nullzero" json:"customerNationality,omitempty"`
	BookingDate         string        `bun:"booking_date,notnull" json:"bookingDate"`
	TimeSlot            string        `bun:"time_slot,nullzero" json:"timeSlot,omitempty"`
	Language            string        `bun:"language,notnull" json:"language"`
	Notes               string        `bun:"notes,nullzero" json:"notes,omitempty"`
	TotalRetail         float64       `bun:"total_retail,notnull" json:"totalRetail"`
	TotalNet            float64       `bun:"total_net,notnull" json:"totalNet"`
	Currency            string        `bun:"currency,notnull" json:"currency"`
	AvailabilitySlotID  string        `bun:"availability_slot_id,nullzero" json:"availabilitySlotId,omitempty"`
	CapacityCommitted   bool          `bun:"capacity_committed,notnull" json:"capacityCommitted"`
	PaymentIntentID     string        `bun:"payment_intent_id,nullzero" json:"paymentIntentId,omitempty"`
	LastPaymentError    string        `bun:"last_payment_error,nullzero" json:"lastPaymentError,omitempty"`
	NeedsAttention      bool          `bun:"needs_attention,notnull" json:"needsAttention"`
	AttentionReason     string        `bun:"attention_reason,nullzero" json:"attentionReason,omitempty"`
	VoucherToken        string        `bun:"voucher_token,unique,notnull" json:"-"`
	ConfirmedAt         time.Time     `bun:"confirmed_at,nullzero" json:"confirmedAt,omitempty"`
	CancelledAt         time.Time     `bun:"cancelled_at,nullzero" json:"cancelledAt,omitempty"`
	CreatedAt           time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt           time.Time     `bun:"updated_at,notnull" json:"updatedAt"`

	LineItems []*BookingLineItem `bun:"rel:has-many,join:id=booking_id" json:"lineItems"`
}

// TourUnits is the capacity a booking consumes: the summed quantity of its tour lines.
func (b *Booking) TourUnits() int {
	n := 0
	for _, item := range b.LineItems {
		if item.ItemType == ItemTypeTour {
			n += item.Quantity
		}
	}
	return n
}

type BookingLineItem struct {
	bun.BaseModel `bun:"table:booking_line_items"`

	ID                      string                 `bun:"id,pk" json:"id"`
	BookingID               string                 `bun:"booking_id,notnull" json:"bookingId"`
	Position                int                    `bun:"position,notnull" json:"position"`
	ItemType                string                 `bun:"item_type,notnull" json:"itemType"`
	ItemID                  string                 `bun:"item_id,notnull" json:"itemId"`
	Name                    string                 `bun:"name,notnull" json:"name"`
	Quantity                int                    `bun:"quantity,notnull" json:"quantity"`
	UnitRetailPriceSnapshot float64                `bun:"unit_retail_price_snapshot,notnull" json:"unitRetailPriceSnapshot"`
	UnitNetPriceSnapshot    float64                `bun:"unit_net_price_snapshot,notnull" json:"unitNetPriceSnapshot"`
	SubtotalRetail          float64                `bun:"subtotal_retail,notnull" json:"subtotalRetail"`
	SubtotalNet             float64                `bun:"subtotal_net,notnull" json:"subtotalNet"`
	Metadata                map[string]interface{} `bun:"metadata,type:jsonb,nullzero" json:"metadata,omitempty"`
	CreatedAt               time.Time              `bun:"created_at,notnull" json:"createdAt"`
}
