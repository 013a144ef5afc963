package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tour-booking/internal/availability"
	"tour-booking/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrTourNotFound    = errors.New("tour not found")
	ErrStatusChanged   = errors.New("booking status changed concurrently")
)

type DB struct {
	Bun *bun.DB
}

func New(db *bun.DB) *DB {
	return &DB{Bun: db}
}

// ---------------- TOURS ----------------

func (d *DB) GetTour(ctx context.Context, id string) (*models.Tour, error) {
	var tour models.Tour
	err := d.Bun.NewSelect().
		Model(&tour).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTourNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tour %s: %w", id, err)
	}
	return &tour, nil
}

// UpsertTour → insert or overwrite a tour row. Bookings keep their own snapshots.
func (d *DB) UpsertTour(ctx context.Context, tour *models.Tour) error {
	now := time.Now().UTC()
	if tour.CreatedAt.IsZero() {
		tour.CreatedAt = now
	}
	tour.UpdatedAt = now
	_, err := d.Bun.NewInsert().
		Model(tour).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("currency = EXCLUDED.currency").
		Set("pricing = EXCLUDED.pricing").
		Set("upsells = EXCLUDED.upsells").
		Set("requires_slot = EXCLUDED.requires_slot").
		Set("requires_payment = EXCLUDED.requires_payment").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert tour %s: %w", tour.ID, err)
	}
	return nil
}

// ---------------- BOOKINGS ----------------

// CreateBooking → insert the booking and its line items in one transaction.
func (d *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(b).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if len(b.LineItems) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&b.LineItems).Exec(ctx); err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		return nil
	})
}

func (d *DB) getBooking(ctx context.Context, column, value string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Relation("LineItems", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by %s: %w", column, err)
	}
	return &b, nil
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	return d.getBooking(ctx, "id", id)
}

func (d *DB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return d.getBooking(ctx, "reference", reference)
}

func (d *DB) GetBookingByVoucherToken(ctx context.Context, token string) (*models.Booking, error) {
	return d.getBooking(ctx, "voucher_token", token)
}

func (d *DB) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("reference = ?", reference).
		Exists(ctx)
}

type ListFilter struct {
	Status         models.BookingStatus
	TourID         string
	NeedsAttention *bool
	Limit          int
	Offset         int
}

// ListBookings → newest first, without line items.
func (d *DB) ListBookings(ctx context.Context, f ListFilter) ([]models.Booking, error) {
	bookings := []models.Booking{}
	q := d.Bun.NewSelect().Model(&bookings)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TourID != "" {
		q = q.Where("tour_id = ?", f.TourID)
	}
	if f.NeedsAttention != nil {
		q = q.Where("needs_attention = ?", *f.NeedsAttention)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// BookingChange is an operator edit. Status is optional; when set the move is
// guarded on the booking's current status.
type BookingChange struct {
	Columns []string
	Items   []*models.BookingLineItem
	Status  models.BookingStatus
}

// ApplyBookingChange → column writes, line item replacement (delete and
// reinsert when Items is non-nil) and the status move in one transaction. If the guarded move loses to a concurrent change
// nothing is written and ErrStatusChanged is returned.
func (d *DB) ApplyBookingChange(ctx context.Context, b *models.Booking, c BookingChange) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		from := []models.BookingStatus{b.Status}
		if len(c.Columns) > 0 || c.Items != nil {
			if err := updateTx(ctx, tx, b, c.Columns, c.Items); err != nil {
				return err
			}
		}
		if c.Status == "" || c.Status == b.Status {
			return nil
		}

		var (
			ok  bool
			err error
		)
		switch c.Status {
		case models.StatusConfirmed:
			ok, err = confirmTx(ctx, tx, b, from)
		case models.StatusCancelled:
			ok, err = cancelTx(ctx, tx, b, from)
		default:
			ok, err = transitionTx(ctx, tx, b.ID, from, c.Status)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is no longer %s", ErrStatusChanged, b.ID, b.Status)
		}
		b.Status = c.Status
		return nil
	})
}

func updateTx(ctx context.Context, tx bun.Tx, b *models.Booking, columns []string, items []*models.BookingLineItem) error {
	b.UpdatedAt = time.Now().UTC()
	columns = append(columns, "updated_at")

	res, err := tx.NewUpdate().
		Model(b).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookingNotFound
	}
	if items == nil {
		return nil
	}

	if _, err := tx.NewDelete().
		Model((*models.BookingLineItem)(nil)).
		Where("booking_id = ?", b.ID).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete line items of %s: %w", b.ID, err)
	}
	if len(items) > 0 {
		if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("insert line items of %s: %w", b.ID, err)
		}
	}
	b.LineItems = items
	return nil
}

// DeleteBooking → remove booking and line items; committed capacity is
// released in the same transaction.
func (d *DB) DeleteBooking(ctx context.Context, b *models.Booking) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.BookingLineItem)(nil)).
			Where("booking_id = ?", b.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete line items of %s: %w", b.ID, err)
		}
		res, err := tx.NewDelete().
			Model((*models.Booking)(nil)).
			Where("id = ?", b.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete booking %s: %w", b.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrBookingNotFound
		}
		return releaseIfCommitted(ctx, tx, b)
	})
}

func releaseIfCommitted(ctx context.Context, tx bun.Tx, b *models.Booking) error {
	if !b.CapacityCommitted || b.AvailabilitySlotID == "" {
		return nil
	}
	units := b.TourUnits()
	if units == 0 {
		return nil
	}
	return availability.New(tx).Release(ctx, b.AvailabilitySlotID, units)
}

// ---------------- STATUS TRANSITIONS ----------------

func transitionQuery(q *bun.UpdateQuery, id string, from []models.BookingStatus, to models.BookingStatus, now time.Time) *bun.UpdateQuery {
	q = q.Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	switch to {
	case models.StatusConfirmed:
		q = q.Set("confirmed_at = ?", now)
	case models.StatusCancelled:
		q = q.Set("cancelled_at = ?", now)
	}
	return q
}

// TransitionStatus moves a booking to `to` only if its current status is one
// of `from`. It reports whether this call performed the transition.
func (d *DB) TransitionStatus(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus) (bool, error) {
	return transitionTx(ctx, d.Bun, id, from, to)
}

func transitionTx(ctx context.Context, db bun.IDB, id string, from []models.BookingStatus, to models.BookingStatus) (bool, error) {
	res, err := transitionQuery(db.NewUpdate(), id, from, to, time.Now().UTC()).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition booking %s to %s: %w", id, to, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ConfirmBooking moves the booking to confirmed and commits slot capacity in
// one transaction. from defaults to pending_payment. A failed commit rolls the
// status change back. confirmed is false when another caller already won the
// transition.
func (d *DB) ConfirmBooking(ctx context.Context, b *models.Booking, from ...models.BookingStatus) (confirmed bool, err error) {
	if len(from) == 0 {
		from = []models.BookingStatus{models.StatusPendingPayment}
	}
	err = d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		confirmed, err = confirmTx(ctx, tx, b, from)
		return err
	})
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

func confirmTx(ctx context.Context, tx bun.Tx, b *models.Booking, from []models.BookingStatus) (bool, error) {
	now := time.Now().UTC()
	res, err := transitionQuery(tx.NewUpdate(), b.ID, from, models.StatusConfirmed, now).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("confirm booking %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	units := b.TourUnits()
	if b.AvailabilitySlotID == "" || units == 0 {
		return true, nil
	}
	if err := availability.New(tx).Commit(ctx, b.AvailabilitySlotID, units); err != nil {
		return false, err
	}
	_, err = tx.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("capacity_committed = ?", true).
		Where("id = ?", b.ID).
		Exec(ctx)
	return err == nil, err
}

// CancelBooking moves a booking from one of `from` to cancelled and releases
// committed capacity atomically.
func (d *DB) CancelBooking(ctx context.Context, b *models.Booking, from []models.BookingStatus) (bool, error) {
	cancelled := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		cancelled, err = cancelTx(ctx, tx, b, from)
		return err
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

func cancelTx(ctx context.Context, tx bun.Tx, b *models.Booking, from []models.BookingStatus) (bool, error) {
	res, err := transitionQuery(tx.NewUpdate(), b.ID, from, models.StatusCancelled, time.Now().UTC()).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("cancel booking %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	// the caller's copy may predate a confirmation
	var committed bool
	if err := tx.NewSelect().
		Model((*models.Booking)(nil)).
		Column("capacity_committed").
		Where("id = ?", b.ID).
		Scan(ctx, &committed); err != nil {
		return false, fmt.Errorf("reload booking %s: %w", b.ID, err)
	}
	b.CapacityCommitted = committed
	if err := releaseIfCommitted(ctx, tx, b); err != nil {
		return false, err
	}
	if !b.CapacityCommitted {
		return true, nil
	}
	_, err = tx.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("capacity_committed = ?", false).
		Where("id = ?", b.ID).
		Exec(ctx)
	return err == nil, err
}

// ---------------- PAYMENT FIELDS ----------------

func (d *DB) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_intent_id = ?", intentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set payment intent on %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// RecordPaymentFailure stores the processor's reason while the booking is
// still awaiting payment. Status is left alone.
func (d *DB) RecordPaymentFailure(ctx context.Context, id, reason string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("last_payment_error = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.StatusPendingPayment).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("record payment failure on %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (d *DB) FlagNeedsAttention(ctx context.Context, id, reason string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("needs_attention = ?", true).
		Set("attention_reason = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("flag booking %s: %w", id, err)
	}
	return nil
}

// ListExpiredPending → pending_payment bookings created before cutoff, oldest
// first. Bookings flagged for an operator are left alone.
func (d *DB) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.StatusPendingPayment).
		Where("needs_attention = ?", false).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expired bookings: %w", err)
	}
	return bookings, nil
}

// ---------------- PAYMENT EVENTS ----------------

func (d *DB) PaymentEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.PaymentEvent)(nil)).
		Where("event_id = ?", eventID).
		Exists(ctx)
}

// RecordPaymentEvent is insert-or-ignore; a second record of the same event is not an error.
func (d *DB) RecordPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	if ev.ProcessedAt.IsZero() {
		ev.ProcessedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().
		Model(ev).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record payment event %s: %w", ev.EventID, err)
	}
	return nil
}
