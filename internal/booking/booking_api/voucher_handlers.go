package booking_api

import (
	"errors"
	"fmt"
	"net/http"

	"tour-booking/internal/models"
	"tour-booking/internal/utils"
	"tour-booking/internal/voucher"

	"github.com/go-chi/chi/v5"
)

type VoucherView struct {
	Reference    string               `json:"reference"`
	Status       models.BookingStatus `json:"status"`
	TourName     string               `json:"tourName"`
	CustomerName string               `json:"customerName"`
	BookingDate  string               `json:"bookingDate"`
	TimeSlot     string               `json:"timeSlot,omitempty"`
	Language     string               `json:"language"`
	TotalRetail  float64              `json:"totalRetail"`
	Currency     string               `json:"currency"`
	LineItems    []LineItemView       `json:"lineItems"`
	URL          string               `json:"url"`
}

func (h *Handler) voucherBooking(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	b, err := h.Bookings.GetByVoucherToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, "Voucher", err)
		return nil, false
	}
	return b, true
}

// GetVoucher is the token-authenticated confirmation view.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	b, ok := h.voucherBooking(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("voucher", VoucherView{
		Reference:    b.Reference,
		Status:       b.Status,
		TourName:     b.TourName,
		CustomerName: b.CustomerName,
		BookingDate:  b.BookingDate,
		TimeSlot:     b.TimeSlot,
		Language:     b.Language,
		TotalRetail:  b.TotalRetail,
		Currency:     b.Currency,
		LineItems:    lineItemViews(b.LineItems),
		URL:          voucher.URL(h.Vouchers.BaseURL, b.VoucherToken),
	}))
}

func (h *Handler) VoucherQR(w http.ResponseWriter, r *http.Request) {
	b, ok := h.voucherBooking(w, r)
	if !ok {
		return
	}
	png, err := voucher.QRCode(voucher.URL(h.Vouchers.BaseURL, b.VoucherToken), 256)
	if err != nil {
		h.writeServiceError(w, "VoucherQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(png)
}

func (h *Handler) VoucherPDF(w http.ResponseWriter, r *http.Request) {
	b, ok := h.voucherBooking(w, r)
	if !ok {
		return
	}
	pdf, err := h.Vouchers.PDF(b)
	if errors.Is(err, voucher.ErrNotIssued) {
		utils.WriteError(w, http.StatusConflict, utils.CodeInvalidTransition, err.Error())
		return
	}
	if err != nil {
		h.writeServiceError(w, "VoucherPDF", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", b.Reference+".pdf"))
	_, _ = w.Write(pdf)
}
