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
	"github.com/shopspring/decimal"
)

// MovementInput describes one movement to append to the ledger
type MovementInput struct {
	ItemID         string
	BatchID        *string
	Type           string
	QuantityDelta  int
	UnitCost       *decimal.Decimal
	Actor          string
	ReasonCode     *string
	RelatedOrderID *string

	// ExpectedVersion, when set, is the item version the caller based its
	// decision on. A mismatch at append time means a concurrent writer got
	// there first and yields a ConflictError instead of a silent overwrite.
	ExpectedVersion *int64
}

// LedgerService is the only writer of stock balances. Every append is
// one transaction: movement insert plus cached balance update, so the
// ledger and the balance can never diverge.
type LedgerService struct {
	db           *database.DB
	itemRepo     *repository.ItemRepository
	batchRepo    *repository.BatchRepository
	movementRepo *repository.MovementRepository
	publisher    *events.InventoryEventPublisher
	logger       *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:           db,
		itemRepo:     itemRepo,
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		publisher:    publisher,
		logger:       log,
	}
}

func validateMovementInput(in *MovementInput) error {
	if in.QuantityDelta == 0 {
		return errors.Validation(map[string]string{"quantity_delta": "zero-delta movements are not recorded"})
	}
	if !repository.ValidMovementType(in.Type) {
		return errors.Validation(map[string]string{"type": fmt.Sprintf("unknown movement type %q", in.Type)})
	}
	if in.Type == repository.MovementAdjustment && (in.ReasonCode == nil || *in.ReasonCode == "") {
		return errors.Validation(map[string]string{"reason_code": "required for adjustment movements"})
	}
	if in.Actor == "" {
		in.Actor = "system"
	}
	return nil
}

// Append validates and records a single movement. The item row is
// locked for the duration of the transaction, so concurrent writers on
// the same item serialize; the new balance is written in the same
// transaction as the movement insert.
func (s *LedgerService) Append(ctx context.Context, in MovementInput) (*repository.StockMovement, error) {
	if err := validateMovementInput(&in); err != nil {
		return nil, err
	}

	var movement *repository.StockMovement
	var newBalance int

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		movement, newBalance, txErr = s.appendTx(tx, in)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", movement.ID).
		Str("item_id", in.ItemID).
		Str("type", in.Type).
		Int("delta", in.QuantityDelta).
		Int("balance", newBalance).
		Msg("movement recorded")

	s.publisher.PublishMovementRecorded(ctx, movement, newBalance)

	return movement, nil
}

// appendTx is the transactional core of Append, shared with the
// receiving path so multi-line receives stay atomic. The caller owns
// the transaction; input must already be validated.
func (s *LedgerService) appendTx(tx *sqlx.Tx, in MovementInput) (*repository.StockMovement, int, error) {
	item, err := s.itemRepo.GetForUpdateTx(tx, in.ItemID)
	if err != nil {
		return nil, 0, err
	}

	if in.ExpectedVersion != nil && *in.ExpectedVersion != item.Version {
		return nil, 0, errors.Conflict(fmt.Sprintf(
			"item %s changed concurrently (version %d, expected %d)",
			item.ID, item.Version, *in.ExpectedVersion,
		))
	}

	newBalance := item.CurrentStock + in.QuantityDelta
	if newBalance < 0 {
		return nil, 0, errors.Validation(map[string]string{
			"quantity_delta": fmt.Sprintf("insufficient stock: %d on hand, delta %d", item.CurrentStock, in.QuantityDelta),
		})
	}

	if in.BatchID != nil {
		batch, err := s.batchRepo.GetForUpdateTx(tx, *in.BatchID)
		if err != nil {
			return nil, 0, err
		}
		if batch.ItemID != item.ID {
			return nil, 0, errors.Validation(map[string]string{"batch_id": "batch does not belong to item"})
		}
		batchBalance := batch.Quantity + in.QuantityDelta
		if batchBalance < 0 {
			return nil, 0, errors.Validation(map[string]string{
				"quantity_delta": fmt.Sprintf("insufficient batch stock: %d on hand, delta %d", batch.Quantity, in.QuantityDelta),
			})
		}
		if err := s.batchRepo.UpdateQuantityTx(tx, batch.ID, batchBalance); err != nil {
			return nil, 0, err
		}
	}

	movement := &repository.StockMovement{
		ItemID:         in.ItemID,
		BatchID:        in.BatchID,
		Type:           in.Type,
		QuantityDelta:  in.QuantityDelta,
		UnitCost:       in.UnitCost,
		Actor:          in.Actor,
		ReasonCode:     in.ReasonCode,
		RelatedOrderID: in.RelatedOrderID,
	}
	if err := s.movementRepo.InsertTx(tx, movement); err != nil {
		return nil, 0, err
	}

	if err := s.itemRepo.UpdateBalanceTx(tx, item.ID, newBalance); err != nil {
		return nil, 0, err
	}

	return movement, newBalance, nil
}

// BalanceCheck is the result of replaying an item's ledger
type BalanceCheck struct {
	ItemID        string `json:"item_id"`
	CachedBalance int    `json:"cached_balance"`
	LedgerBalance int    `json:"ledger_balance"`
	Consistent    bool   `json:"consistent"`
}

// VerifyBalance replays the movement ledger for an item and compares
// the sum of deltas against the cached balance.
func (s *LedgerService) VerifyBalance(ctx context.Context, itemID string) (*BalanceCheck, error) {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	sum, err := s.movementRepo.SumDeltas(ctx, itemID)
	if err != nil {
		return nil, err
	}

	check := &BalanceCheck{
		ItemID:        itemID,
		CachedBalance: item.CurrentStock,
		LedgerBalance: sum,
		Consistent:    item.CurrentStock == sum,
	}

	if !check.Consistent {
		s.logger.Error().
			Str("item_id", itemID).
			Int("cached", check.CachedBalance).
			Int("ledger", check.LedgerBalance).
			Msg("cached balance diverged from ledger")
	}

	return check, nil
}

// ListMovements pages through an item's ledger history
func (s *LedgerService) ListMovements(ctx context.Context, itemID string, page, perPage int) ([]*repository.StockMovement, int64, error) {
	if _, err := s.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, 0, err
	}
	return s.movementRepo.ListByItem(ctx, itemID, page, perPage)
}
