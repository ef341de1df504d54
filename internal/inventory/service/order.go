package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// OrderService manages the purchase order lifecycle and posts receipts
// against orders. Order state and ledger state always move in the same
// transaction, in that order: movements first, then line and status.
type OrderService struct {
	db           *database.DB
	orderRepo    *repository.OrderRepository
	itemRepo     *repository.ItemRepository
	batchRepo    *repository.BatchRepository
	supplierRepo *repository.SupplierRepository
	ledger       *LedgerService
	publisher    *events.InventoryEventPublisher
	logger       *logger.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	db *database.DB,
	orderRepo *repository.OrderRepository,
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	supplierRepo *repository.SupplierRepository,
	ledger *LedgerService,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		db:           db,
		orderRepo:    orderRepo,
		itemRepo:     itemRepo,
		batchRepo:    batchRepo,
		supplierRepo: supplierRepo,
		ledger:       ledger,
		publisher:    publisher,
		logger:       log,
	}
}

// Create validates and persists a new purchase order in status ordered
func (s *OrderService) Create(ctx context.Context, supplierID string, lines []*repository.PurchaseOrderLine, createdBy string) (*repository.PurchaseOrder, error) {
	if len(lines) == 0 {
		return nil, errors.Validation(map[string]string{"lines": "order must have at least one line"})
	}
	for i, line := range lines {
		if line.OrderedQty <= 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("lines[%d].quantity", i): "must be positive",
			})
		}
		if line.UnitPrice.IsNegative() {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("lines[%d].unit_price", i): "must not be negative",
			})
		}
	}

	if _, err := s.supplierRepo.GetByID(ctx, supplierID); err != nil {
		return nil, err
	}
	for _, line := range lines {
		if _, err := s.itemRepo.GetByID(ctx, line.ItemID); err != nil {
			return nil, err
		}
	}

	if createdBy == "" {
		createdBy = "system"
	}

	order := &repository.PurchaseOrder{
		SupplierID: supplierID,
		Status:     repository.OrderStatusOrdered,
		CreatedBy:  createdBy,
		Lines:      lines,
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return s.orderRepo.CreateTx(tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("supplier_id", supplierID).
		Int("lines", len(order.Lines)).
		Str("total", order.Total().String()).
		Msg("purchase order created")

	s.publisher.PublishOrderCreated(ctx, order)

	return order, nil
}

// Get returns an order with its lines
func (s *OrderService) Get(ctx context.Context, orderID string) (*repository.PurchaseOrder, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

// List lists orders, optionally filtered by status
func (s *OrderService) List(ctx context.Context, status string, page, perPage int) ([]*repository.PurchaseOrder, int64, error) {
	if status != "" && !repository.OrderStatus(status).IsValid() {
		return nil, 0, errors.Validation(map[string]string{"status": fmt.Sprintf("unknown status %q", status)})
	}
	return s.orderRepo.List(ctx, repository.OrderStatus(status), page, perPage)
}

// Cancel moves a non-terminal order to cancelled. Receipts already
// posted stay in the ledger; cancellation never rewrites history.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*repository.PurchaseOrder, error) {
	var order *repository.PurchaseOrder

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		order, txErr = s.orderRepo.GetForUpdateTx(tx, orderID)
		if txErr != nil {
			return txErr
		}

		if order.Status.IsTerminal() {
			return errors.State(fmt.Sprintf("order %s is %s and cannot be cancelled", order.ID, order.Status))
		}

		order.Status = repository.OrderStatusCancelled
		return s.orderRepo.UpdateStatusTx(tx, order.ID, order.Status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("order_id", order.ID).Msg("purchase order cancelled")
	s.publisher.PublishOrderCancelled(ctx, order)

	return order, nil
}

// Receive posts a set of line receipts against an order. The whole set
// is validated before anything is applied; a single invalid receipt
// rejects the call and leaves both the order and the ledger untouched.
// Applied receipts produce one receipt movement per line through the
// ledger primitives, inside the same transaction that moves the order.
func (s *OrderService) Receive(ctx context.Context, orderID string, receipts []repository.Receipt, actor string) (*repository.PurchaseOrder, error) {
	if actor == "" {
		actor = "system"
	}

	// Empty receipt set: return the current order snapshot, no state change
	if len(receipts) == 0 {
		return s.orderRepo.GetByID(ctx, orderID)
	}

	var order *repository.PurchaseOrder

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		order, txErr = s.orderRepo.GetForUpdateTx(tx, orderID)
		if txErr != nil {
			return txErr
		}

		// Snapshot received quantities before ApplyReceipts mutates them,
		// so per-line movement deltas can be derived afterwards.
		before := make(map[string]int, len(order.Lines))
		for _, line := range order.Lines {
			before[line.ID] = line.ReceivedQty
		}

		if txErr = order.ApplyReceipts(receipts); txErr != nil {
			return txErr
		}

		for _, r := range receipts {
			line := order.Line(r.LineID)

			// A lot number with an expiry registers the quantity as a new
			// batch; the batch starts empty and the movement fills it.
			var batchID *string
			if r.LotNumber != "" && r.ExpiryDate != nil {
				batch := &repository.Batch{
					ItemID:     line.ItemID,
					LotNumber:  r.LotNumber,
					ExpiryDate: *r.ExpiryDate,
				}
				if txErr = s.batchRepo.CreateTx(tx, batch); txErr != nil {
					return txErr
				}
				batchID = &batch.ID
			}

			unitPrice := line.UnitPrice
			if _, _, txErr = s.ledger.appendTx(tx, MovementInput{
				ItemID:         line.ItemID,
				BatchID:        batchID,
				Type:           repository.MovementReceipt,
				QuantityDelta:  r.Quantity,
				UnitCost:       &unitPrice,
				Actor:          actor,
				RelatedOrderID: &order.ID,
			}); txErr != nil {
				return txErr
			}
		}

		// Persist order state only after the ledger writes above
		for _, line := range order.Lines {
			if line.ReceivedQty != before[line.ID] {
				if txErr = s.orderRepo.UpdateLineReceivedTx(tx, line.ID, line.ReceivedQty); txErr != nil {
					return txErr
				}
			}
		}

		return s.orderRepo.UpdateStatusTx(tx, order.ID, order.Status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("status", string(order.Status)).
		Int("receipts", len(receipts)).
		Msg("order receipts posted")

	s.publisher.PublishOrderReceived(ctx, order, len(receipts))

	return order, nil
}
