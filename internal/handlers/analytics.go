package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/postmod/apiserver/internal/services"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

func AnalyticsRouter(r chi.Router, analyticsService *services.AnalyticsService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAnalyticsHandler(analyticsService)

	r.With(authMiddleware).Get("/comments_daily_breakdown", handler.CommentsDailyBreakdown)
}

// CommentsDailyBreakdown counts comments per day between date_from and
// date_to, both inclusive.
func (h *AnalyticsHandler) CommentsDailyBreakdown(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, errFrom := time.Parse(services.DateLayout, query.Get("date_from"))
	to, errTo := time.Parse(services.DateLayout, query.Get("date_to"))
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, detailInvalidDate)
		return
	}

	breakdown, err := h.analyticsService.CommentsDailyBreakdown(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err, detailInternal)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}
