package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tour-booking/internal/availability"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/logger"
	"tour-booking/internal/models"
	"tour-booking/internal/pricing"
	"tour-booking/internal/utils"
)

var (
	ErrMissingRequiredField    = errors.New("missing required field")
	ErrInvalidEmailFormat      = errors.New("invalid email format")
	ErrInvalidSelection        = errors.New("invalid selection")
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrPricingValidationFailed = errors.New("pricing validation failed")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrBookingNotFound         = db.ErrBookingNotFound
)

type Store interface {
	GetTour(ctx context.Context, id string) (*models.Tour, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	GetBookingByVoucherToken(ctx context.Context, token string) (*models.Booking, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	ListBookings(ctx context.Context, f db.ListFilter) ([]models.Booking, error)
	ApplyBookingChange(ctx context.Context, b *models.Booking, c db.BookingChange) error
	DeleteBooking(ctx context.Context, b *models.Booking) error
	CancelBooking(ctx context.Context, b *models.Booking, from []models.BookingStatus) (bool, error)
}

type CapacityChecker interface {
	GetSlot(ctx context.Context, slotID string) (*models.AvailabilitySlot, error)
	CheckCapacity(ctx context.Context, slotID string, units int) (bool, error)
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, b *models.Booking) error
}

// IntentCanceller voids an open payment intent when its booking goes away.
type IntentCanceller interface {
	CancelIntent(ctx context.Context, intentID string) error
}

type Service struct {
	Store    Store
	Capacity CapacityChecker
	Events   EventPublisher
	Payments IntentCanceller
	Logger   *logger.Logger
	now      func() time.Time
}

func NewService(store Store, capacity CapacityChecker, events EventPublisher, payments IntentCanceller, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Capacity: capacity,
		Events:   events,
		Payments: payments,
		Logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	TourID              string                 `json:"tourId" validate:"required"`
	AvailabilitySlotID  string                 `json:"availabilitySlotId,omitempty"`
	BookingDate         string                 `json:"bookingDate" validate:"required,datetime=2006-01-02"`
	TimeSlot            string                 `json:"timeSlot,omitempty"`
	CustomerName        string                 `json:"customerName" validate:"required"`
	CustomerEmail       string                 `json:"customerEmail" validate:"required,email"`
	CustomerPhone       string                 `json:"customerPhone,omitempty"`
	CustomerNationality string                 `json:"customerNationality,omitempty"`
	Language            string                 `json:"language" validate:"required"`
	Selection           pricing.GuestSelection `json:"selection"`
	Notes               string                 `json:"notes,omitempty"`
}

func (r *CreateRequest) normalize() {
	r.TourID = strings.TrimSpace(r.TourID)
	r.AvailabilitySlotID = strings.TrimSpace(r.AvailabilitySlotID)
	r.BookingDate = strings.TrimSpace(r.BookingDate)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.Language = strings.TrimSpace(r.Language)
}

func (r *CreateRequest) validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	sel := r.Selection
	if sel.Adults < 0 || sel.Children < 0 || sel.SeatQuantity < 0 {
		return fmt.Errorf("%w: negative quantity", ErrInvalidSelection)
	}
	return nil
}

// ---------------- CREATE ----------------

// Create re-prices the selection against the tour's current configuration and
// persists the booking with snapshotted prices. Nothing is written on failure.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	tour, err := s.Store.GetTour(ctx, req.TourID)
	if errors.Is(err, db.ErrTourNotFound) {
		return nil, fmt.Errorf("%w: unknown tour %s", ErrInvalidSelection, req.TourID)
	}
	if err != nil {
		return nil, err
	}
	if !tour.Active {
		return nil, fmt.Errorf("%w: tour %s is not bookable", ErrInvalidSelection, tour.ID)
	}

	breakdown, err := pricing.Quote(tour.Pricing, tour.Upsells, req.Selection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPricingValidationFailed, err)
	}
	if breakdown.Currency != tour.Currency {
		return nil, fmt.Errorf("%w: pricing currency %s differs from tour currency %s",
			ErrPricingValidationFailed, breakdown.Currency, tour.Currency)
	}

	if tour.RequiresSlot && req.AvailabilitySlotID == "" {
		return nil, fmt.Errorf("%w: availabilitySlotId", ErrMissingRequiredField)
	}
	if req.AvailabilitySlotID != "" {
		slot, err := s.checkSlot(ctx, tour, req, breakdown.Guests())
		if err != nil {
			return nil, err
		}
		if req.TimeSlot == "" {
			req.TimeSlot = slot.TimeSlot
		}
	}

	b, err := s.newBooking(ctx, tour, req, breakdown)
	if err != nil {
		return nil, err
	}
	if err := s.Store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("persist booking: %w", err)
	}

	s.Logger.LogBooking("CREATED", b.ID, fmt.Sprintf("ref=%s status=%s total=%.2f %s", b.Reference, b.Status, b.TotalRetail, b.Currency))
	s.publish(ctx, models.EventBookingCreated, b)
	return b, nil
}

// Quote prices a selection the same way Create does, without persisting.
func (s *Service) Quote(ctx context.Context, tourID string, sel pricing.GuestSelection) (*pricing.Breakdown, error) {
	tour, err := s.Store.GetTour(ctx, tourID)
	if errors.Is(err, db.ErrTourNotFound) {
		return nil, fmt.Errorf("%w: unknown tour %s", ErrInvalidSelection, tourID)
	}
	if err != nil {
		return nil, err
	}
	breakdown, err := pricing.Quote(tour.Pricing, tour.Upsells, sel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPricingValidationFailed, err)
	}
	return breakdown, nil
}

func (s *Service) checkSlot(ctx context.Context, tour *models.Tour, req CreateRequest, units int) (*models.AvailabilitySlot, error) {
	slot, err := s.Capacity.GetSlot(ctx, req.AvailabilitySlotID)
	if errors.Is(err, availability.ErrSlotNotFound) {
		return nil, fmt.Errorf("%w: slot %s does not exist", ErrSlotUnavailable, req.AvailabilitySlotID)
	}
	if err != nil {
		return nil, err
	}
	if slot.TourID != tour.ID || slot.Date != req.BookingDate {
		return nil, fmt.Errorf("%w: slot %s is not for tour %s on %s", ErrInvalidSelection, slot.ID, tour.ID, req.BookingDate)
	}

	ok, err := s.Capacity.CheckCapacity(ctx, slot.ID, units)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d requested, %d left", ErrSlotUnavailable, units, slot.Remaining())
	}
	return slot, nil
}

func (s *Service) newBooking(ctx context.Context, tour *models.Tour, req CreateRequest, breakdown *pricing.Breakdown) (*models.Booking, error) {
	now := s.now()
	reference, err := s.uniqueReference(ctx, now)
	if err != nil {
		return nil, err
	}
	token, err := utils.GenerateVoucherToken()
	if err != nil {
		return nil, err
	}

	status := models.StatusPending
	if tour.RequiresPayment {
		status = models.StatusPendingPayment
	}

	b := &models.Booking{
		ID:                  utils.GenerateUUID(),
		Reference:           reference,
		Status:              status,
		TourID:              tour.ID,
		TourName:            tour.Name,
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		CustomerNationality: req.CustomerNationality,
		BookingDate:         req.BookingDate,
		TimeSlot:            req.TimeSlot,
		Language:            req.Language,
		Notes:               req.Notes,
		Currency:            breakdown.Currency,
		AvailabilitySlotID:  req.AvailabilitySlotID,
		VoucherToken:        token,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for i, line := range breakdown.Lines {
		item := &models.BookingLineItem{
			ID:                      utils.GenerateUUID(),
			BookingID:               b.ID,
			Position:                i,
			ItemType:                line.ItemType,
			ItemID:                  line.ItemID,
			Name:                    line.Label,
			Quantity:                line.Quantity,
			UnitRetailPriceSnapshot: line.UnitPrice,
			UnitNetPriceSnapshot:    line.UnitNetPrice,
			SubtotalRetail:          line.Amount,
			SubtotalNet:             line.NetAmount,
			CreatedAt:               now,
		}
		if line.ItemType == models.ItemTypeTour {
			item.Metadata = map[string]interface{}{"pricingKind": string(tour.Pricing.Kind)}
		}
		b.LineItems = append(b.LineItems, item)
	}
	b.TotalRetail, b.TotalNet = sumLineItems(b.LineItems)
	return b, nil
}

func (s *Service) uniqueReference(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		ref := utils.GenerateBookingReference(now)
		exists, err := s.Store.ReferenceExists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check reference: %w", err)
		}
		if !exists {
			return ref, nil
		}
	}
	return "", errors.New("could not allocate a unique booking reference")
}

func sumLineItems(items []*models.BookingLineItem) (retail, net float64) {
	for _, item := range items {
		retail += item.SubtotalRetail
		net += item.SubtotalNet
	}
	return retail, net
}

// ---------------- READ ----------------

func (s *Service) Get(ctx context.Context, id string) (*models.Booking, error) {
	return s.Store.GetBookingByID(ctx, id)
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return s.Store.GetBookingByReference(ctx, reference)
}

func (s *Service) GetByVoucherToken(ctx context.Context, token string) (*models.Booking, error) {
	return s.Store.GetBookingByVoucherToken(ctx, token)
}

func (s *Service) List(ctx context.Context, f db.ListFilter) ([]models.Booking, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSelection, f.Status)
	}
	return s.Store.ListBookings(ctx, f)
}

// ---------------- ADMIN ----------------

type Patch struct {
	CustomerName        *string               `json:"customerName,omitempty"`
	CustomerEmail       *string               `json:"customerEmail,omitempty"`
	CustomerPhone       *string               `json:"customerPhone,omitempty"`
	CustomerNationality *string               `json:"customerNationality,omitempty"`
	Language            *string               `json:"language,omitempty"`
	Notes               *string               `json:"notes,omitempty"`
	Status              *models.BookingStatus `json:"status,omitempty"`
	LineItems           []LineItemInput       `json:"lineItems,omitempty"`
}

type LineItemInput struct {
	ItemType        string                 `json:"itemType"`
	ItemID          string                 `json:"itemId"`
	Name            string                 `json:"name"`
	Quantity        int                    `json:"quantity"`
	UnitRetailPrice float64                `json:"unitRetailPrice"`
	UnitNetPrice    float64                `json:"unitNetPrice"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Update applies an operator correction. Replacement line items become the
// new snapshot and the totals are recalculated from them.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*models.Booking, error) {
	b, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var columns []string
	set := func(dst *string, v *string, column string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
			columns = append(columns, column)
		}
	}
	set(&b.CustomerName, p.CustomerName, "customer_name")
	set(&b.CustomerEmail, p.CustomerEmail, "customer_email")
	set(&b.CustomerPhone, p.CustomerPhone, "customer_phone")
	set(&b.CustomerNationality, p.CustomerNationality, "customer_nationality")
	set(&b.Language, p.Language, "language")
	set(&b.Notes, p.Notes, "notes")

	if p.CustomerName != nil && b.CustomerName == "" {
		return nil, fmt.Errorf("%w: customerName", ErrMissingRequiredField)
	}
	if p.CustomerEmail != nil && !validEmail(b.CustomerEmail) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmailFormat, b.CustomerEmail)
	}

	target := b.Status
	if p.Status != nil && *p.Status != b.Status {
		target = *p.Status
		if !target.Valid() || !models.CanTransition(b.Status, target, true) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, target)
		}
	}

	change := db.BookingChange{Columns: columns}
	if p.LineItems != nil {
		if change.Items, err = s.replacementItems(b, target, p.LineItems); err != nil {
			return nil, err
		}
		b.TotalRetail, b.TotalNet = sumLineItems(change.Items)
		change.Columns = append(change.Columns, "total_retail", "total_net")
	}
	if target != b.Status {
		change.Status = target
	}

	if len(change.Columns) > 0 || change.Items != nil || change.Status != "" {
		from := b.Status
		err := s.Store.ApplyBookingChange(ctx, b, change)
		if errors.Is(err, db.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidTransition, b.ID)
		}
		if err != nil {
			return nil, err
		}
		if change.Status == models.StatusCancelled && from != models.StatusCancelled {
			s.cancelIntent(ctx, b)
		}
	}

	updated, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Logger.LogBooking("UPDATED", id, fmt.Sprintf("columns=%v status=%s", change.Columns, updated.Status))
	s.publish(ctx, models.EventBookingUpdated, updated)
	return updated, nil
}

func (s *Service) replacementItems(b *models.Booking, target models.BookingStatus, inputs []LineItemInput) ([]*models.BookingLineItem, error) {
	if b.Status.Terminal() || target.Terminal() {
		return nil, fmt.Errorf("%w: line items of a %s booking are frozen", ErrInvalidTransition, target)
	}
	now := s.now()
	items := make([]*models.BookingLineItem, 0, len(inputs))
	for i, in := range inputs {
		if in.ItemType != models.ItemTypeTour && in.ItemType != models.ItemTypeUpsell {
			return nil, fmt.Errorf("%w: item type %q", ErrInvalidSelection, in.ItemType)
		}
		if in.ItemID == "" || in.Name == "" {
			return nil, fmt.Errorf("%w: line item %d needs itemId and name", ErrMissingRequiredField, i)
		}
		if in.Quantity < 1 || in.UnitRetailPrice < 0 || in.UnitNetPrice < 0 {
			return nil, fmt.Errorf("%w: line item %d has a bad quantity or price", ErrInvalidSelection, i)
		}
		items = append(items, &models.BookingLineItem{
			ID:                      utils.GenerateUUID(),
			BookingID:               b.ID,
			Position:                i,
			ItemType:                in.ItemType,
			ItemID:                  in.ItemID,
			Name:                    in.Name,
			Quantity:                in.Quantity,
			UnitRetailPriceSnapshot: in.UnitRetailPrice,
			UnitNetPriceSnapshot:    in.UnitNetPrice,
			SubtotalRetail:          float64(in.Quantity) * in.UnitRetailPrice,
			SubtotalNet:             float64(in.Quantity) * in.UnitNetPrice,
			Metadata:                in.Metadata,
			CreatedAt:               now,
		})
	}

	// committed capacity is tied to the guest count
	if b.CapacityCommitted {
		replaced := &models.Booking{LineItems: items}
		if replaced.TourUnits() != b.TourUnits() {
			return nil, fmt.Errorf("%w: guest count of a booking with committed capacity cannot change", ErrInvalidSelection)
		}
	}
	return items, nil
}

type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

// Cancel moves an unconfirmed booking to cancelled. A confirmed booking can
// only be cancelled by an operator, which also releases its capacity.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor) (*models.Booking, error) {
	b, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusCancelled {
		return b, nil
	}
	if !models.CanTransition(b.Status, models.StatusCancelled, actor == ActorAdmin) {
		return nil, fmt.Errorf("%w: %s booking cannot be cancelled by %s", ErrInvalidTransition, b.Status, actor)
	}

	ok, err := s.Store.CancelBooking(ctx, b, []models.BookingStatus{b.Status})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidTransition, id)
	}
	s.cancelIntent(ctx, b)

	b, err = s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Logger.LogBooking("CANCELLED", id, fmt.Sprintf("by=%s", actor))
	s.publish(ctx, models.EventBookingCancelled, b)
	return b, nil
}

// Delete removes the booking and its line items, releasing committed capacity.
func (s *Service) Delete(ctx context.Context, id string) error {
	b, err := s.Store.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteBooking(ctx, b); err != nil {
		return err
	}
	if b.Status == models.StatusPendingPayment {
		s.cancelIntent(ctx, b)
	}
	s.Logger.LogBooking("DELETED", id, fmt.Sprintf("ref=%s released=%t", b.Reference, b.CapacityCommitted))
	s.publish(ctx, models.EventBookingDeleted, b)
	return nil
}

func (s *Service) cancelIntent(ctx context.Context, b *models.Booking) {
	if s.Payments == nil || b.PaymentIntentID == "" {
		return
	}
	if err := s.Payments.CancelIntent(ctx, b.PaymentIntentID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("cancel intent %s for booking %s: %v", b.PaymentIntentID, b.ID, err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, b *models.Booking) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishBookingEvent(ctx, eventType, b); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish %s for %s: %v", eventType, b.ID, err))
	}
}
