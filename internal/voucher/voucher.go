// Package voucher renders what a confirmed customer shows at the meeting
// point: a link carrying the voucher token, its QR code and a printable PDF.
package voucher

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"tour-booking/internal/models"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

var ErrNotIssued = errors.New("voucher is only issued for confirmed bookings")

// URL joins the public voucher page with a booking's token.
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + token
}

// QRCode encodes the voucher URL as a PNG.
func QRCode(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode voucher qr: %w", err)
	}
	return png, nil
}

type Generator struct {
	BaseURL string
}

func NewGenerator(baseURL string) *Generator {
	return &Generator{BaseURL: baseURL}
}

// PDF renders a one-page A4 voucher for b.
func (g *Generator) PDF(b *models.Booking) ([]byte, error) {
	if b.Status != models.StatusConfirmed && b.Status != models.StatusCompleted {
		return nil, ErrNotIssued
	}
	qr, err := QRCode(URL(g.BaseURL, b.VoucherToken), 512)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Voucher "+b.Reference, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TOUR VOUCHER")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range []string{
		"Reference : " + b.Reference,
		"Tour      : " + tr(b.TourName),
		"Date      : " + b.BookingDate + " " + b.TimeSlot,
		"Guest     : " + tr(b.CustomerName),
		"Language  : " + strings.ToUpper(b.Language),
	} {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Booked:")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range b.LineItems {
		pdf.Cell(0, 6, fmt.Sprintf("%d x %s", item.Quantity, tr(item.Name)))
		pdf.Ln(6)
	}
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Total paid: %.2f %s", b.TotalRetail, b.Currency))
	pdf.Ln(12)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 15, pdf.GetY(), 50, 50, false, opts, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render voucher %s: %w", b.Reference, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write voucher %s: %w", b.Reference, err)
	}
	return buf.Bytes(), nil
}
