package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// InventoryHandler serves the item and ledger endpoints
type InventoryHandler struct {
	inventory *service.InventoryService
	ledger    *service.LedgerService
	reconcile *service.ReconcileService
	forecast  *service.ForecastService
	logger    *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(
	inventory *service.InventoryService,
	ledger *service.LedgerService,
	reconcile *service.ReconcileService,
	forecast *service.ForecastService,
	log *logger.Logger,
) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		ledger:    ledger,
		reconcile: reconcile,
		forecast:  forecast,
		logger:    log,
	}
}

// RegisterRoutes registers the item routes on the router
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/movements", h.Movements)
			r.Get("/forecast", h.Forecast)
			r.Post("/reconcile", h.Reconcile)
			r.Post("/dispense", h.Dispense)
		})
	})
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func totalPages(total int64, perPage int) int {
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// List handles GET /items
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	filter := repository.ListFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Sort:     r.URL.Query().Get("sort"),
		Page:     page,
		PerPage:  perPage,
	}

	items, total, err := h.inventory.ListInventory(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

type createItemRequest struct {
	Name       string  `json:"name" validate:"required"`
	Category   string  `json:"category"`
	Unit       string  `json:"unit"`
	UnitCost   string  `json:"unit_cost"`
	MinStock   int     `json:"min_stock" validate:"gte=0"`
	SupplierID *string `json:"supplier_id,omitempty"`
}

// Create handles POST /items. New items start with zero stock; the
// balance only ever moves through the ledger.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.inventory.CreateItem(r.Context(), req.Name, req.Category, req.Unit, req.UnitCost, req.MinStock, req.SupplierID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Get handles GET /items/{id}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.inventory.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, detail)
}

// Movements handles GET /items/{id}/movements
func (h *InventoryHandler) Movements(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	movements, total, err := h.ledger.ListMovements(r.Context(), chi.URLParam(r, "id"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

type reconcileRequest struct {
	RealQuantity int    `json:"real_quantity" validate:"gte=0"`
	ReasonCode   string `json:"reason_code"`
}

// Reconcile handles POST /items/{id}/reconcile
func (h *InventoryHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.reconcile.Reconcile(
		r.Context(), chi.URLParam(r, "id"),
		req.RealQuantity, req.ReasonCode, httputil.GetActor(r.Context()),
	)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

type dispenseRequest struct {
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	BatchID  *string `json:"batch_id,omitempty"`
}

// Dispense handles POST /items/{id}/dispense
func (h *InventoryHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req dispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.ledger.Append(r.Context(), service.MovementInput{
		ItemID:        chi.URLParam(r, "id"),
		BatchID:       req.BatchID,
		Type:          repository.MovementDispense,
		QuantityDelta: -req.Quantity,
		Actor:         httputil.GetActor(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Forecast handles GET /items/{id}/forecast
func (h *InventoryHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	windowMonths, _ := strconv.Atoi(r.URL.Query().Get("months"))

	forecast, err := h.forecast.ForecastItem(r.Context(), chi.URLParam(r, "id"), windowMonths)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, forecast)
}
