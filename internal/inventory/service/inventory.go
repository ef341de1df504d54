package service

import (
	"context"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Stock status labels derived from the cached balance
const (
	StockStatusNormal   = "normal"
	StockStatusLow      = "low"
	StockStatusCritical = "critical"
)

// StockStatus derives the status label from the current balance and the
// minimum threshold. Pure function over canonical state; never stored.
func StockStatus(currentStock, minStock int) string {
	switch {
	case currentStock == 0 || currentStock <= minStock/2:
		return StockStatusCritical
	case currentStock <= minStock:
		return StockStatusLow
	default:
		return StockStatusNormal
	}
}

// ItemView is a catalog item annotated with computed fields
type ItemView struct {
	*repository.Item
	Status     string          `json:"status"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// ItemDetail is an item with its batches and computed fields
type ItemDetail struct {
	ItemView
	Batches       []*repository.Batch `json:"batches"`
	NearestExpiry *time.Time          `json:"nearest_expiry,omitempty"`
}

// InventoryService serves inventory listings. All balance reads go
// through here or the ledger; nothing outside a ledger transaction can
// mutate a balance.
type InventoryService struct {
	itemRepo  *repository.ItemRepository
	batchRepo *repository.BatchRepository
	logger    *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		itemRepo:  itemRepo,
		batchRepo: batchRepo,
		logger:    log,
	}
}

func newItemView(item *repository.Item) ItemView {
	return ItemView{
		Item:       item,
		Status:     StockStatus(item.CurrentStock, item.MinStock),
		TotalValue: item.UnitCost.Mul(decimal.NewFromInt(int64(item.CurrentStock))),
	}
}

// CreateItem registers a new catalog item with zero stock. Stock only
// enters through receipt movements afterwards.
func (s *InventoryService) CreateItem(ctx context.Context, name, category, unit, unitCost string, minStock int, supplierID *string) (*repository.Item, error) {
	cost := decimal.Zero
	if unitCost != "" {
		parsed, err := decimal.NewFromString(unitCost)
		if err != nil || parsed.IsNegative() {
			return nil, errors.Validation(map[string]string{"unit_cost": "must be a non-negative decimal"})
		}
		cost = parsed
	}
	if minStock < 0 {
		return nil, errors.Validation(map[string]string{"min_stock": "must not be negative"})
	}
	if unit == "" {
		unit = "unit"
	}

	item := &repository.Item{
		Name:       name,
		Category:   category,
		Unit:       unit,
		UnitCost:   cost,
		MinStock:   minStock,
		SupplierID: supplierID,
		IsActive:   true,
	}
	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info().Str("item_id", item.ID).Str("name", item.Name).Msg("catalog item created")

	return item, nil
}

// ListInventory lists items with computed status and total value
func (s *InventoryService) ListInventory(ctx context.Context, filter repository.ListFilter) ([]ItemView, int64, error) {
	items, total, err := s.itemRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	views := make([]ItemView, len(items))
	for i, item := range items {
		views[i] = newItemView(item)
	}

	return views, total, nil
}

// GetItem gets an item with its batches and computed fields
func (s *InventoryService) GetItem(ctx context.Context, id string) (*ItemDetail, error) {
	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListByItem(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &ItemDetail{
		ItemView: newItemView(item),
		Batches:  batches,
	}

	for _, b := range batches {
		if b.Quantity > 0 {
			if detail.NearestExpiry == nil || b.ExpiryDate.Before(*detail.NearestExpiry) {
				expiry := b.ExpiryDate
				detail.NearestExpiry = &expiry
			}
		}
	}

	return detail, nil
}
