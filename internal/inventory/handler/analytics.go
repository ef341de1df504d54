package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// AnalyticsHandler serves the consumption analytics endpoints
type AnalyticsHandler struct {
	forecast *service.ForecastService
	logger   *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(forecast *service.ForecastService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{forecast: forecast, logger: log}
}

// RegisterRoutes registers the analytics routes on the router
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/analytics", h.GetAnalytics)
	r.Get("/recommendations", h.Recommendations)
}

// GetAnalytics handles GET /analytics
func (h *AnalyticsHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	period, _ := strconv.Atoi(r.URL.Query().Get("period"))
	category := r.URL.Query().Get("category")

	analytics, err := h.forecast.GetAnalytics(r.Context(), period, category)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, analytics)
}

// Recommendations handles GET /recommendations
func (h *AnalyticsHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	months, _ := strconv.Atoi(r.URL.Query().Get("months"))

	recs, err := h.forecast.Recommendations(r.Context(), months)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if recs == nil {
		recs = []*service.Forecast{}
	}

	httputil.JSON(w, http.StatusOK, recs)
}
