package pricing

import (
	"errors"
	"fmt"
	"regexp"
)

type Kind string

const (
	KindFlatPerPerson Kind = "flat_per_person"
	KindAdultChild    Kind = "adult_child"
	KindSeatBased     Kind = "seat_based"
)

var ErrInvalidConfiguration = errors.New("invalid pricing configuration")

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Configuration is a closed variant: Kind selects which one of the three
// engine settings is populated.
type Configuration struct {
	Kind          Kind           `json:"kind"`
	FlatPerPerson *FlatPerPerson `json:"flatPerPerson,omitempty"`
	AdultChild    *AdultChild    `json:"adultChild,omitempty"`
	SeatBased     *SeatBased     `json:"seatBased,omitempty"`
}

type FlatPerPerson struct {
	UnitRetailPrice float64 `json:"unitRetailPrice"`
	UnitNetPrice    float64 `json:"unitNetPrice"`
	Currency        string  `json:"currency"`
	MinGuests       int     `json:"minGuests"`
	MaxGuests       int     `json:"maxGuests"`
}

type AdultChild struct {
	AdultRetailPrice float64 `json:"adultRetailPrice"`
	AdultNetPrice    float64 `json:"adultNetPrice"`
	ChildRetailPrice float64 `json:"childRetailPrice"`
	ChildNetPrice    float64 `json:"childNetPrice"`
	ChildMaxAge      int     `json:"childMaxAge"`
	Currency         string  `json:"currency"`
	MinGuests        int     `json:"minGuests"`
	MaxGuests        int     `json:"maxGuests"`
}

type SeatBased struct {
	SeatTypes []SeatType `json:"seatTypes"`
	Currency  string     `json:"currency"`
}

type SeatType struct {
	SeatTypeID         string  `json:"seatTypeId"`
	Label              string  `json:"label"`
	RetailPrice        float64 `json:"retailPrice"`
	NetPrice           float64 `json:"netPrice"`
	CapacityPerBooking int     `json:"capacityPerBooking"`
}

func FlatConfig(c FlatPerPerson) Configuration {
	return Configuration{Kind: KindFlatPerPerson, FlatPerPerson: &c}
}

func AdultChildConfig(c AdultChild) Configuration {
	return Configuration{Kind: KindAdultChild, AdultChild: &c}
}

func SeatConfig(c SeatBased) Configuration {
	return Configuration{Kind: KindSeatBased, SeatBased: &c}
}

// Currency returns the currency of whichever variant is populated.
func (c Configuration) Currency() string {
	switch c.Kind {
	case KindFlatPerPerson:
		if c.FlatPerPerson != nil {
			return c.FlatPerPerson.Currency
		}
	case KindAdultChild:
		if c.AdultChild != nil {
			return c.AdultChild.Currency
		}
	case KindSeatBased:
		if c.SeatBased != nil {
			return c.SeatBased.Currency
		}
	}
	return ""
}

func (c Configuration) Validate() error {
	switch c.Kind {
	case KindFlatPerPerson:
		f := c.FlatPerPerson
		if f == nil || c.AdultChild != nil || c.SeatBased != nil {
			return fmt.Errorf("%w: %s requires only flatPerPerson settings", ErrInvalidConfiguration, c.Kind)
		}
		if err := checkPrices(f.UnitRetailPrice, f.UnitNetPrice); err != nil {
			return err
		}
		if err := checkGuestRange(f.MinGuests, f.MaxGuests); err != nil {
			return err
		}
		return checkCurrency(f.Currency)
	case KindAdultChild:
		a := c.AdultChild
		if a == nil || c.FlatPerPerson != nil || c.SeatBased != nil {
			return fmt.Errorf("%w: %s requires only adultChild settings", ErrInvalidConfiguration, c.Kind)
		}
		if err := checkPrices(a.AdultRetailPrice, a.AdultNetPrice, a.ChildRetailPrice, a.ChildNetPrice); err != nil {
			return err
		}
		if err := checkGuestRange(a.MinGuests, a.MaxGuests); err != nil {
			return err
		}
		return checkCurrency(a.Currency)
	case KindSeatBased:
		s := c.SeatBased
		if s == nil || c.FlatPerPerson != nil || c.AdultChild != nil {
			return fmt.Errorf("%w: %s requires only seatBased settings", ErrInvalidConfiguration, c.Kind)
		}
		if len(s.SeatTypes) == 0 {
			return fmt.Errorf("%w: no seat types", ErrInvalidConfiguration)
		}
		seen := make(map[string]bool, len(s.SeatTypes))
		for _, st := range s.SeatTypes {
			if st.SeatTypeID == "" || seen[st.SeatTypeID] {
				return fmt.Errorf("%w: seat type id %q missing or duplicated", ErrInvalidConfiguration, st.SeatTypeID)
			}
			seen[st.SeatTypeID] = true
			if err := checkPrices(st.RetailPrice, st.NetPrice); err != nil {
				return err
			}
			if st.CapacityPerBooking < 1 {
				return fmt.Errorf("%w: seat type %s has no capacity", ErrInvalidConfiguration, st.SeatTypeID)
			}
		}
		return checkCurrency(s.Currency)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfiguration, c.Kind)
	}
}

func checkPrices(prices ...float64) error {
	for _, p := range prices {
		if p < 0 {
			return fmt.Errorf("%w: negative price %v", ErrInvalidConfiguration, p)
		}
	}
	return nil
}

func checkGuestRange(min, max int) error {
	if min < 1 || min > max {
		return fmt.Errorf("%w: guest range [%d, %d]", ErrInvalidConfiguration, min, max)
	}
	return nil
}

func checkCurrency(currency string) error {
	if !currencyPattern.MatchString(currency) {
		return fmt.Errorf("%w: currency %q", ErrInvalidConfiguration, currency)
	}
	return nil
}
