// Package notify hands confirmation e-mails to the mail service.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"tour-booking/internal/logger"
	"tour-booking/internal/models"
	"tour-booking/internal/voucher"
)

const TemplateBookingConfirmation = "booking_confirmation"

type SnapshotLine struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Amount    float64 `json:"amount"`
}

// BookingSnapshot is the booking as the customer should see it in the mail.
type BookingSnapshot struct {
	BookingID     string         `json:"bookingId"`
	Reference     string         `json:"reference"`
	TourName      string         `json:"tourName"`
	CustomerName  string         `json:"customerName"`
	CustomerEmail string         `json:"customerEmail"`
	BookingDate   string         `json:"bookingDate"`
	TimeSlot      string         `json:"timeSlot,omitempty"`
	Language      string         `json:"language"`
	Currency      string         `json:"currency"`
	TotalRetail   float64        `json:"totalRetail"`
	Lines         []SnapshotLine `json:"lines"`
	Upsells       []SnapshotLine `json:"upsells,omitempty"`
}

type Options struct {
	Language      string
	IncludeQRCode bool
}

func SnapshotFromBooking(b *models.Booking) BookingSnapshot {
	s := BookingSnapshot{
		BookingID:     b.ID,
		Reference:     b.Reference,
		TourName:      b.TourName,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		BookingDate:   b.BookingDate,
		TimeSlot:      b.TimeSlot,
		Language:      b.Language,
		Currency:      b.Currency,
		TotalRetail:   b.TotalRetail,
	}
	for _, item := range b.LineItems {
		line := SnapshotLine{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitRetailPriceSnapshot,
			Amount:    item.SubtotalRetail,
		}
		if item.ItemType == models.ItemTypeUpsell {
			s.Upsells = append(s.Upsells, line)
		} else {
			s.Lines = append(s.Lines, line)
		}
	}
	return s
}

// EmailRequest is the message the mail service consumes.
type EmailRequest struct {
	Template    string          `json:"template"`
	To          string          `json:"to"`
	Language    string          `json:"language"`
	Subject     string          `json:"subject"`
	VoucherURL  string          `json:"voucherUrl"`
	QRCodePNG   string          `json:"qrCodePng,omitempty"`
	Booking     BookingSnapshot `json:"booking"`
	RequestedAt time.Time       `json:"requestedAt"`
}

type publisher interface {
	Publish(ctx context.Context, key, eventType string, v interface{}) error
}

// KafkaMailer publishes e-mail requests; delivery is the mail service's job.
type KafkaMailer struct {
	producer publisher
	log      *logger.Logger
}

func NewKafkaMailer(p publisher, log *logger.Logger) *KafkaMailer {
	return &KafkaMailer{producer: p, log: log}
}

func (m *KafkaMailer) SendBookingConfirmation(ctx context.Context, snapshot BookingSnapshot, voucherURL string, opts Options) error {
	req, err := BuildConfirmation(snapshot, voucherURL, opts)
	if err != nil {
		return err
	}
	return m.producer.Publish(ctx, snapshot.BookingID, TemplateBookingConfirmation, req)
}

func BuildConfirmation(snapshot BookingSnapshot, voucherURL string, opts Options) (*EmailRequest, error) {
	if snapshot.CustomerEmail == "" {
		return nil, fmt.Errorf("booking %s has no customer email", snapshot.Reference)
	}
	lang := opts.Language
	if lang == "" {
		lang = snapshot.Language
	}
	req := &EmailRequest{
		Template:    TemplateBookingConfirmation,
		To:          snapshot.CustomerEmail,
		Language:    lang,
		Subject:     fmt.Sprintf("Booking confirmed: %s (%s)", snapshot.TourName, snapshot.Reference),
		VoucherURL:  voucherURL,
		Booking:     snapshot,
		RequestedAt: time.Now().UTC(),
	}
	if opts.IncludeQRCode {
		png, err := voucher.QRCode(voucherURL, 256)
		if err != nil {
			return nil, err
		}
		req.QRCodePNG = base64.StdEncoding.EncodeToString(png)
	}
	return req, nil
}

// LogMailer only logs; used when Kafka is disabled.
type LogMailer struct {
	Logger *logger.Logger
}

func (m LogMailer) SendBookingConfirmation(_ context.Context, snapshot BookingSnapshot, voucherURL string, _ Options) error {
	m.Logger.Info("EMAIL", fmt.Sprintf("confirmation for %s to %s (voucher %s)", snapshot.Reference, snapshot.CustomerEmail, voucherURL))
	return nil
}
