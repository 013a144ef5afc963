package booking_api

import (
	"net/http"

	"tour-booking/internal/analytics"
	"tour-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

func analyticsRange(r *http.Request) analytics.Range {
	q := r.URL.Query()
	return analytics.Range{From: q.Get("from"), To: q.Get("to")}
}

// AdminTourSummaries returns sold revenue per tour, optionally for ?from=&to= tour dates.
func (h *Handler) AdminTourSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Analytics.GetTourSummaries(r.Context(), analyticsRange(r))
	if err != nil {
		h.writeServiceError(w, "AdminTourSummaries", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tour summaries", summaries))
}

func (h *Handler) AdminTourAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.Analytics.GetTourAnalytics(r.Context(), chi.URLParam(r, "tourId"), analyticsRange(r))
	if err != nil {
		h.writeServiceError(w, "AdminTourAnalytics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tour analytics", report))
}
