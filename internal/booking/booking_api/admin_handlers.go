package booking_api

import (
	"fmt"
	"net/http"
	"strconv"

	"tour-booking/internal/auth"
	"tour-booking/internal/availability"
	"tour-booking/internal/booking"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/models"
	"tour-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) AdminListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.ListFilter{
		Status: models.BookingStatus(q.Get("status")),
		TourID: q.Get("tourId"),
	}
	if v := q.Get("needsAttention"); v != "" {
		flag, err := strconv.ParseBool(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, "needsAttention must be true or false")
			return
		}
		f.NeedsAttention = &flag
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, "limit must be a non-negative number")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, "offset must be a non-negative number")
		return
	}

	bookings, err := h.Bookings.List(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, "AdminListBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("bookings", bookings))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func (h *Handler) AdminUpdateBooking(w http.ResponseWriter, r *http.Request) {
	var patch booking.Patch
	if err := decodeJSON(r, &patch); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, err.Error())
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Bookings.Update(r.Context(), bookingID, patch)
	if err != nil {
		h.writeServiceError(w, "AdminUpdateBooking", err)
		return
	}
	h.Logger.LogSecurity("ADMIN_UPDATE", fmt.Sprintf("booking %s updated by %s", bookingID, auth.Subject(r.Context())))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("booking updated", b))
}

func (h *Handler) AdminCancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Bookings.Cancel(r.Context(), bookingID, booking.ActorAdmin)
	if err != nil {
		h.writeServiceError(w, "AdminCancelBooking", err)
		return
	}
	h.Logger.LogSecurity("ADMIN_CANCEL", fmt.Sprintf("booking %s cancelled by %s", bookingID, auth.Subject(r.Context())))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("booking cancelled", b))
}

func (h *Handler) AdminDeleteBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	if err := h.Bookings.Delete(r.Context(), bookingID); err != nil {
		h.writeServiceError(w, "AdminDeleteBooking", err)
		return
	}
	h.Logger.LogSecurity("ADMIN_DELETE", fmt.Sprintf("booking %s deleted by %s", bookingID, auth.Subject(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminCreateSlot(w http.ResponseWriter, r *http.Request) {
	var in availability.NewSlot
	if err := decodeJSON(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, err.Error())
		return
	}
	slot, err := h.Slots.CreateSlot(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "AdminCreateSlot", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("slot created", slot))
}

type slotEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) AdminSetSlotEnabled(w http.ResponseWriter, r *http.Request) {
	var req slotEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeInvalidRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeMissingRequiredField, "enabled is required")
		return
	}
	slotID := chi.URLParam(r, "slotId")
	if err := h.Slots.SetEnabled(r.Context(), slotID, *req.Enabled); err != nil {
		h.writeServiceError(w, "AdminSetSlotEnabled", err)
		return
	}
	slot, err := h.Slots.GetSlot(r.Context(), slotID)
	if err != nil {
		h.writeServiceError(w, "AdminSetSlotEnabled", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("slot updated", slot))
}
