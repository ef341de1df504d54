package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// SupplierHandler serves the supplier reference data endpoints
type SupplierHandler struct {
	suppliers *repository.SupplierRepository
	logger    *logger.Logger
}

// NewSupplierHandler creates a new supplier handler
func NewSupplierHandler(suppliers *repository.SupplierRepository, log *logger.Logger) *SupplierHandler {
	return &SupplierHandler{suppliers: suppliers, logger: log}
}

// RegisterRoutes registers the supplier routes on the router
func (h *SupplierHandler) RegisterRoutes(r chi.Router) {
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
	})
}

// List handles GET /suppliers
func (h *SupplierHandler) List(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.suppliers.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, suppliers)
}

// Get handles GET /suppliers/{id}
func (h *SupplierHandler) Get(w http.ResponseWriter, r *http.Request) {
	supplier, err := h.suppliers.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, supplier)
}

type createSupplierRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	LeadTimeDays int    `json:"lead_time_days" validate:"gte=0"`
}

// Create handles POST /suppliers
func (h *SupplierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSupplierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	supplier := &repository.Supplier{
		Name:         req.Name,
		LeadTimeDays: req.LeadTimeDays,
	}
	if req.Email != "" {
		supplier.Email = &req.Email
	}
	if req.Phone != "" {
		supplier.Phone = &req.Phone
	}
	if err := h.suppliers.Create(r.Context(), supplier); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, supplier)
}
