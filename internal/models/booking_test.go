package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		admin    bool
		want     bool
	}{
		{StatusPending, StatusPendingPayment, false, true},
		{StatusPendingPayment, StatusConfirmed, false, true},
		{StatusPendingPayment, StatusCancelled, false, true},
		{StatusConfirmed, StatusCompleted, false, true},
		{StatusConfirmed, StatusCancelled, false, false},
		{StatusConfirmed, StatusCancelled, true, true},
		{StatusConfirmed, StatusPendingPayment, true, false},
		{StatusCancelled, StatusConfirmed, true, false},
		{StatusCompleted, StatusCancelled, true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to, tt.admin), "%s -> %s admin=%t", tt.from, tt.to, tt.admin)
	}
}

func TestTourUnitsCountsOnlyTourLines(t *testing.T) {
	b := &Booking{LineItems: []*BookingLineItem{
		{ItemType: ItemTypeTour, Quantity: 2},
		{ItemType: ItemTypeTour, Quantity: 1},
		{ItemType: ItemTypeUpsell, Quantity: 4},
	}}
	assert.Equal(t, 3, b.TourUnits())
}

func TestSlotRemaining(t *testing.T) {
	assert.Equal(t, 2, (&AvailabilitySlot{Capacity: 5, Booked: 3}).Remaining())
	assert.Equal(t, 0, (&AvailabilitySlot{Capacity: 5, Booked: 5}).Remaining())
}
