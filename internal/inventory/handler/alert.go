package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// AlertHandler serves the alert endpoints
type AlertHandler struct {
	alerts *service.AlertService
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: log}
}

// RegisterRoutes registers the alert routes on the router
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Get("/alerts", h.Scan)
}

// Scan handles GET /alerts
func (h *AlertHandler) Scan(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.Scan(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	// An empty scan is a healthy pharmacy, not a missing resource
	if alerts == nil {
		alerts = []*service.Alert{}
	}

	httputil.JSON(w, http.StatusOK, alerts)
}
