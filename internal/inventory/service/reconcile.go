package service

import (
	"context"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// ReconcileResult reports the outcome of a physical count. NoOp is true
// when the counted quantity already matched the ledger balance.
type ReconcileResult struct {
	Movement *repository.StockMovement `json:"movement,omitempty"`
	NoOp     bool                      `json:"no_op"`
	Balance  int                       `json:"balance"`
}

// ReconcileService aligns recorded stock with physically counted
// quantities. It is the only path that may move a balance without a
// dispense/receipt trail, which makes it the audit point for shrinkage.
type ReconcileService struct {
	itemRepo  *repository.ItemRepository
	ledger    *LedgerService
	publisher *events.InventoryEventPublisher
	logger    *logger.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(
	itemRepo *repository.ItemRepository,
	ledger *LedgerService,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *ReconcileService {
	return &ReconcileService{
		itemRepo:  itemRepo,
		ledger:    ledger,
		publisher: publisher,
		logger:    log,
	}
}

// Reconcile compares a counted quantity to the current balance and, if
// they differ, appends one adjustment movement carrying the reason code.
// Counting the same true quantity twice is a no-op: no movement, no
// history noise. A concurrent writer between the read and the append
// surfaces as a version conflict and is retried once with fresh state.
func (s *ReconcileService) Reconcile(ctx context.Context, itemID string, countedQty int, reasonCode, actor string) (*ReconcileResult, error) {
	if countedQty < 0 {
		return nil, errors.Validation(map[string]string{"counted_qty": "must not be negative"})
	}

	const attempts = 2
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		item, err := s.itemRepo.GetByID(ctx, itemID)
		if err != nil {
			return nil, err
		}

		delta := countedQty - item.CurrentStock
		if delta == 0 {
			return &ReconcileResult{NoOp: true, Balance: item.CurrentStock}, nil
		}

		if reasonCode == "" {
			return nil, errors.Validation(map[string]string{
				"reason_code": "required when the counted quantity differs from the recorded balance",
			})
		}

		reason := reasonCode
		movement, err := s.ledger.Append(ctx, MovementInput{
			ItemID:          itemID,
			Type:            repository.MovementAdjustment,
			QuantityDelta:   delta,
			Actor:           actor,
			ReasonCode:      &reason,
			ExpectedVersion: &item.Version,
		})
		if err != nil {
			if errors.Is(err, errors.ErrConflict) && attempt < attempts-1 {
				s.logger.Warn().
					Str("item_id", itemID).
					Msg("concurrent write during reconciliation, retrying with fresh state")
				lastErr = err
				continue
			}
			return nil, err
		}

		s.publisher.PublishStockReconciled(ctx, itemID, countedQty, delta, reasonCode, actor)

		return &ReconcileResult{Movement: movement, Balance: countedQty}, nil
	}

	return nil, lastErr
}
