package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// OrderHandler serves the purchase order endpoints
type OrderHandler struct {
	orders *service.OrderService
	logger *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: log}
}

// RegisterRoutes registers the order routes on the router
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/receive", h.Receive)
			r.Post("/cancel", h.Cancel)
		})
	})
}

type orderLineRequest struct {
	ItemID    string `json:"item_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type createOrderRequest struct {
	SupplierID string             `json:"supplier_id" validate:"required"`
	Lines      []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// orderView decorates an order with its computed total for responses
type orderView struct {
	*repository.PurchaseOrder
	Total decimal.Decimal `json:"total"`
}

func newOrderView(order *repository.PurchaseOrder) orderView {
	return orderView{PurchaseOrder: order, Total: order.Total()}
}

// Create handles POST /orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	lines := make([]*repository.PurchaseOrderLine, len(req.Lines))
	for i, l := range req.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"unit_price": "must be a decimal number"}))
			return
		}
		lines[i] = &repository.PurchaseOrderLine{
			ItemID:     l.ItemID,
			OrderedQty: l.Quantity,
			UnitPrice:  price,
		}
	}

	order, err := h.orders.Create(r.Context(), req.SupplierID, lines, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, newOrderView(order))
}

// Get handles GET /orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newOrderView(order))
}

// List handles GET /orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)

	orders, total, err := h.orders.List(r.Context(), r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	views := make([]orderView, len(orders))
	for i, order := range orders {
		views[i] = newOrderView(order)
	}

	httputil.JSONWithMeta(w, http.StatusOK, views, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

type receiveRequest struct {
	Receipts []repository.Receipt `json:"receipts" validate:"dive"`
}

// Receive handles POST /orders/{id}/receive
func (h *OrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.orders.Receive(r.Context(), chi.URLParam(r, "id"), req.Receipts, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newOrderView(order))
}

// Cancel handles POST /orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newOrderView(order))
}
