package booking_api

import (
	"fmt"
	"net/http"
	"time"

	"tour-booking/internal/booking"
	"tour-booking/internal/models"
	"tour-booking/internal/pricing"
	"tour-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type BookingSummary struct {
	ID          string               `json:"id"`
	Reference   string               `json:"reference"`
	Status      models.BookingStatus `json:"status"`
	TotalRetail float64              `json:"totalRetail"`
	Currency    string               `json:"currency"`
}

type CreateBookingResponse struct {
	Success bool           `json:"success"`
	Booking BookingSummary `json:"booking"`
}

func summary(b *models.Booking) BookingSummary {
	return BookingSummary{
		ID:          b.ID,
		Reference:   b.Reference,
		Status:      b.Status,
		TotalRetail: b.TotalRetail,
		Currency:    b.Currency,
	}
}

// LineItemView is a line item as the customer sees it. Net prices stay internal.
type LineItemView struct {
	ItemType  string  `json:"itemType"`
	ItemID    string  `json:"itemId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Amount    float64 `json:"amount"`
}

// BookingView is the public booking read. Contact details and supplier cost are
// only on the admin routes.
type BookingView struct {
	ID           string               `json:"id"`
	Reference    string               `json:"reference"`
	Status       models.BookingStatus `json:"status"`
	TourID       string               `json:"tourId"`
	TourName     string               `json:"tourName"`
	CustomerName string               `json:"customerName"`
	BookingDate  string               `json:"bookingDate"`
	TimeSlot     string               `json:"timeSlot,omitempty"`
	Language     string               `json:"language"`
	TotalRetail  float64              `json:"totalRetail"`
	Currency     string               `json:"currency"`
	LineItems    []LineItemView       `json:"lineItems"`
	CreatedAt    time.Time            `json:"createdAt"`
}

type QuoteView struct {
	Lines       []LineItemView `json:"lines"`
	TotalRetail float64        `json:"totalRetail"`
	Currency    string         `json:"currency"`
}

func lineItemViews(items []*models.BookingLineItem) []LineItemView {
	views := make([]LineItemView, 0, len(items))
	for _, item := range items {
		views = append(views, LineItemView{
			ItemType:  item.ItemType,
			ItemID:    item.ItemID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitRetailPriceSnapshot,
			Amount:    item.SubtotalRetail,
		})
	}
	return views
}

func bookingView(b *models.Booking) BookingView {
	return BookingView{
		ID:           b.ID,
		Reference:    b.Reference,
		Status:       b.Status,
		TourID:       b.TourID,
		TourName:     b.TourName,
		CustomerName: b.CustomerName,
		BookingDate:  b.BookingDate,
		TimeSlot:     b.TimeSlot,
		Language:     b.Language,
		TotalRetail:  b.TotalRetail,
		Currency:     b.Currency,
		LineItems:    lineItemViews(b.LineItems),
		CreatedAt:    b.CreatedAt,
	}
}

func quoteView(q *pricing.Breakdown) QuoteView {
	view := QuoteView{Lines: make([]LineItemView, 0, len(q.Lines)), TotalRetail: q.TotalRetail, Currency: q.Currency}
	for _, l := range q.Lines {
		view.Lines = append(view.Lines, LineItemView{
			ItemType:  l.ItemType,
			ItemID:    l.ItemID,
			Name:      l.Label,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Amount:    l.Amount,
		})
	}
	return view
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, err.Error())
		return
	}

	b, err := h.Bookings.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "CreateBooking", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateBooking: %s created for tour %s", b.Reference, b.TourID))
	utils.WriteJSON(w, http.StatusCreated, CreateBookingResponse{Success: true, Booking: summary(b)})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Bookings.Get(r.Context(), bookingID)
	if err != nil {
		h.writeServiceError(w, "GetBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("booking", bookingView(b)))
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var sel pricing.GuestSelection
	if err := decodeJSON(r, &sel); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, err.Error())
		return
	}
	breakdown, err := h.Bookings.Quote(r.Context(), chi.URLParam(r, "tourId"), sel)
	if err != nil {
		h.writeServiceError(w, "Quote", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("quote", quoteView(breakdown)))
}

// ListAvailability returns open slots between ?from= and ?to= (YYYY-MM-DD).
func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeMissingRequiredField, "from and to are required")
		return
	}
	slots, err := h.Slots.FindOpenSlots(r.Context(), chi.URLParam(r, "tourId"), from, to)
	if err != nil {
		h.writeServiceError(w, "ListAvailability", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("availability", slots))
}
