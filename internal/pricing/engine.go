// Package pricing turns a tour pricing configuration and a guest selection into
// a price breakdown. Everything here is deterministic and free of I/O so the
// same computation can back live quotes and the authoritative server price.
package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGuestCount    = errors.New("invalid guest count")
	ErrInvalidSeatSelection = errors.New("invalid seat selection")
	ErrInvalidUpsell        = errors.New("invalid upsell selection")
)

const (
	ItemTypeTour   = "tour"
	ItemTypeUpsell = "upsell"
)

type GuestSelection struct {
	Adults       int               `json:"adults"`
	Children     int               `json:"children"`
	SeatTypeID   string            `json:"seatTypeId,omitempty"`
	SeatQuantity int               `json:"seatQuantity,omitempty"`
	Upsells      []UpsellSelection `json:"upsells,omitempty"`
}

type UpsellSelection struct {
	UpsellID string `json:"upsellId"`
	Quantity int    `json:"quantity"`
}

// Upsell is an optional add-on sold alongside a tour.
type Upsell struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	RetailPrice float64 `json:"retailPrice"`
	NetPrice    float64 `json:"netPrice"`
	MaxQuantity int     `json:"maxQuantity,omitempty"`
}

// Line holds one priced row. Amount is always Quantity * UnitPrice.
type Line struct {
	ItemType     string  `json:"itemType"`
	ItemID       string  `json:"itemId"`
	Label        string  `json:"label"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	Amount       float64 `json:"amount"`
	UnitNetPrice float64 `json:"unitNetPrice"`
	NetAmount    float64 `json:"netAmount"`
}

type Breakdown struct {
	Lines       []Line  `json:"lines"`
	TotalRetail float64 `json:"totalRetail"`
	TotalNet    float64 `json:"totalNet"`
	Currency    string  `json:"currency"`
}

// Guests is the number of people the tour lines cover.
func (b *Breakdown) Guests() int {
	n := 0
	for _, l := range b.Lines {
		if l.ItemType == ItemTypeTour {
			n += l.Quantity
		}
	}
	return n
}

func newLine(itemType, itemID, label string, qty int, retail, net float64) Line {
	return Line{
		ItemType:     itemType,
		ItemID:       itemID,
		Label:        label,
		Quantity:     qty,
		UnitPrice:    retail,
		Amount:       float64(qty) * retail,
		UnitNetPrice: net,
		NetAmount:    float64(qty) * net,
	}
}

func (b *Breakdown) add(l Line) {
	b.Lines = append(b.Lines, l)
	b.TotalRetail += l.Amount
	b.TotalNet += l.NetAmount
}

// Compute prices the tour portion of a selection.
func Compute(cfg Configuration, sel GuestSelection) (*Breakdown, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindFlatPerPerson:
		return computeFlat(cfg.FlatPerPerson, sel)
	case KindAdultChild:
		return computeAdultChild(cfg.AdultChild, sel)
	case KindSeatBased:
		return computeSeats(cfg.SeatBased, sel)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfiguration, cfg.Kind)
}

func computeFlat(f *FlatPerPerson, sel GuestSelection) (*Breakdown, error) {
	if sel.Adults < 0 || sel.Children < 0 {
		return nil, fmt.Errorf("%w: negative guest count", ErrInvalidGuestCount)
	}
	qty := sel.Adults + sel.Children
	if qty < f.MinGuests || qty > f.MaxGuests {
		return nil, fmt.Errorf("%w: %d guests outside [%d, %d]", ErrInvalidGuestCount, qty, f.MinGuests, f.MaxGuests)
	}

	b := &Breakdown{Currency: f.Currency}
	b.add(newLine(ItemTypeTour, "guest", "Guest", qty, f.UnitRetailPrice, f.UnitNetPrice))
	return b, nil
}

// Child eligibility is the caller's explicit choice; ChildMaxAge is shown to
// customers but never checked here.
func computeAdultChild(a *AdultChild, sel GuestSelection) (*Breakdown, error) {
	if sel.Adults < 0 || sel.Children < 0 {
		return nil, fmt.Errorf("%w: negative guest count", ErrInvalidGuestCount)
	}
	total := sel.Adults + sel.Children
	if total < a.MinGuests || total > a.MaxGuests {
		return nil, fmt.Errorf("%w: %d guests outside [%d, %d]", ErrInvalidGuestCount, total, a.MinGuests, a.MaxGuests)
	}

	b := &Breakdown{Currency: a.Currency}
	if sel.Adults > 0 {
		b.add(newLine(ItemTypeTour, "adult", "Adult", sel.Adults, a.AdultRetailPrice, a.AdultNetPrice))
	}
	if sel.Children > 0 {
		b.add(newLine(ItemTypeTour, "child", "Child", sel.Children, a.ChildRetailPrice, a.ChildNetPrice))
	}
	return b, nil
}

func computeSeats(s *SeatBased, sel GuestSelection) (*Breakdown, error) {
	if sel.SeatTypeID == "" {
		return nil, fmt.Errorf("%w: no seat type selected", ErrInvalidSeatSelection)
	}
	for _, st := range s.SeatTypes {
		if st.SeatTypeID != sel.SeatTypeID {
			continue
		}
		if sel.SeatQuantity < 1 || sel.SeatQuantity > st.CapacityPerBooking {
			return nil, fmt.Errorf("%w: %d seats of %s, limit %d", ErrInvalidSeatSelection, sel.SeatQuantity, st.SeatTypeID, st.CapacityPerBooking)
		}
		b := &Breakdown{Currency: s.Currency}
		b.add(newLine(ItemTypeTour, st.SeatTypeID, st.Label, sel.SeatQuantity, st.RetailPrice, st.NetPrice))
		return b, nil
	}
	return nil, fmt.Errorf("%w: unknown seat type %q", ErrInvalidSeatSelection, sel.SeatTypeID)
}

// AddUpsells appends one line per selected upsell from the catalogue.
func AddUpsells(b *Breakdown, catalogue []Upsell, picks []UpsellSelection) error {
	byID := make(map[string]Upsell, len(catalogue))
	for _, u := range catalogue {
		byID[u.ID] = u
	}

	seen := make(map[string]bool, len(picks))
	for _, p := range picks {
		u, ok := byID[p.UpsellID]
		if !ok {
			return fmt.Errorf("%w: unknown upsell %q", ErrInvalidUpsell, p.UpsellID)
		}
		if seen[p.UpsellID] {
			return fmt.Errorf("%w: upsell %q selected twice", ErrInvalidUpsell, p.UpsellID)
		}
		seen[p.UpsellID] = true
		if p.Quantity < 1 || (u.MaxQuantity > 0 && p.Quantity > u.MaxQuantity) {
			return fmt.Errorf("%w: quantity %d for %q", ErrInvalidUpsell, p.Quantity, p.UpsellID)
		}
		if u.RetailPrice < 0 || u.NetPrice < 0 {
			return fmt.Errorf("%w: upsell %q has a negative price", ErrInvalidConfiguration, u.ID)
		}
		b.add(newLine(ItemTypeUpsell, u.ID, u.Name, p.Quantity, u.RetailPrice, u.NetPrice))
	}
	return nil
}

// Quote prices the tour lines and any upsells in one pass.
func Quote(cfg Configuration, catalogue []Upsell, sel GuestSelection) (*Breakdown, error) {
	b, err := Compute(cfg, sel)
	if err != nil {
		return nil, err
	}
	if err := AddUpsells(b, catalogue, sel.Upsells); err != nil {
		return nil, err
	}
	return b, nil
}
