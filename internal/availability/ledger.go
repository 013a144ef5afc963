// Package availability owns slot capacity. The booked counter only moves
// through Commit and Release, each a single conditional UPDATE, so concurrent
// callers never need an application lock.
package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tour-booking/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	ErrSlotNotFound     = errors.New("availability slot not found")
	ErrSlotDisabled     = errors.New("availability slot disabled")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidUnits     = errors.New("units must be positive")
	ErrInvalidSlot      = errors.New("invalid availability slot")
)

const dateLayout = "2006-01-02"

type Ledger struct {
	Bun bun.IDB
}

func New(db bun.IDB) *Ledger {
	return &Ledger{Bun: db}
}

// WithTx returns a ledger whose statements run inside tx.
func (l *Ledger) WithTx(tx bun.Tx) *Ledger {
	return &Ledger{Bun: tx}
}

// FindOpenSlots → enabled slots of a tour with remaining capacity, dates inclusive.
func (l *Ledger) FindOpenSlots(ctx context.Context, tourID, from, to string) ([]models.AvailabilitySlot, error) {
	slots := []models.AvailabilitySlot{}
	q := l.Bun.NewSelect().
		Model(&slots).
		Where("tour_id = ?", tourID).
		Where("enabled = ?", true).
		Where("booked < capacity")
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	err := q.Order("date ASC", "time_slot ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find open slots for tour %s: %w", tourID, err)
	}
	return slots, nil
}

func (l *Ledger) GetSlot(ctx context.Context, slotID string) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	err := l.Bun.NewSelect().
		Model(&slot).
		Where("id = ?", slotID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", slotID, err)
	}
	return &slot, nil
}

// CheckCapacity is a plain read. It reserves nothing; a later Commit may
// still fail.
func (l *Ledger) CheckCapacity(ctx context.Context, slotID string, units int) (bool, error) {
	if units < 1 {
		return false, ErrInvalidUnits
	}
	slot, err := l.GetSlot(ctx, slotID)
	if err != nil {
		return false, err
	}
	return slot.Enabled && slot.Remaining() >= units, nil
}

// Commit → increment booked by units only while the result stays within capacity.
func (l *Ledger) Commit(ctx context.Context, slotID string, units int) error {
	if units < 1 {
		return ErrInvalidUnits
	}
	res, err := l.Bun.NewUpdate().
		Model((*models.AvailabilitySlot)(nil)).
		Set("booked = booked + ?", units).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Where("enabled = ?", true).
		Where("booked + ? <= capacity", units).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("commit %d units on slot %s: %w", units, slotID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// Nothing matched; work out which guard failed.
	slot, err := l.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if !slot.Enabled {
		return ErrSlotDisabled
	}
	return fmt.Errorf("%w: slot %s has %d of %d left, %d requested",
		ErrCapacityExceeded, slotID, slot.Remaining(), slot.Capacity, units)
}

// Release → decrement booked by units, never below zero.
func (l *Ledger) Release(ctx context.Context, slotID string, units int) error {
	if units < 1 {
		return ErrInvalidUnits
	}
	res, err := l.Bun.NewUpdate().
		Model((*models.AvailabilitySlot)(nil)).
		Set("booked = booked - ?", units).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Where("booked >= ?", units).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release %d units on slot %s: %w", units, slotID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := l.GetSlot(ctx, slotID); err != nil {
		return err
	}
	return fmt.Errorf("release %d units on slot %s: fewer units booked", units, slotID)
}

// ---------------- OPERATOR ----------------

type NewSlot struct {
	TourID   string `json:"tourId"`
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot,omitempty"`
	Capacity int    `json:"capacity"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

func (l *Ledger) CreateSlot(ctx context.Context, in NewSlot) (*models.AvailabilitySlot, error) {
	if in.TourID == "" {
		return nil, fmt.Errorf("%w: tourId is required", ErrInvalidSlot)
	}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidSlot, in.Date)
	}
	if in.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidSlot)
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	now := time.Now().UTC()
	slot := &models.AvailabilitySlot{
		ID:        uuid.New().String(),
		TourID:    in.TourID,
		Date:      in.Date,
		TimeSlot:  in.TimeSlot,
		Capacity:  in.Capacity,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := l.Bun.NewInsert().Model(slot).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return slot, nil
}

func (l *Ledger) SetEnabled(ctx context.Context, slotID string, enabled bool) error {
	res, err := l.Bun.NewUpdate().
		Model((*models.AvailabilitySlot)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set slot %s enabled=%t: %w", slotID, enabled, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSlotNotFound
	}
	return nil
}
