package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tour-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// BookingEvents streams status changes for one booking so the checkout page
// can leave its "confirming payment" state without polling.
func (h *Handler) BookingEvents(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	b, err := h.Bookings.Get(r.Context(), bookingID)
	if err != nil {
		h.writeServiceError(w, "BookingEvents", err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "streaming unsupported")
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Broker.Subscribe(ctx, bookingID)

	// current status first, so a confirmation that raced the subscribe is not lost
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":%q,\"bookingId\":%q}\n\n", b.Status, bookingID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to booking events for: %s", bookingID))

	for {
		select {
		case ev, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for booking: %s", bookingID))
				return
			}
			jsonData, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize booking event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from booking events for: %s", bookingID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
