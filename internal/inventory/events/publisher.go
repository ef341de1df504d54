package events

import (
	"context"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// InventoryEventPublisher publishes inventory domain events. A nil
// underlying publisher disables publishing, which keeps services
// testable without a broker.
type InventoryEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a publisher bound to the inventory
// events exchange. A nil connection yields a disabled publisher.
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	if rmq == nil {
		return &InventoryEventPublisher{logger: log}, nil
	}

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}

	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		// Events are best-effort; the transaction already committed
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PublishMovementRecorded announces a committed ledger movement
func (p *InventoryEventPublisher) PublishMovementRecorded(ctx context.Context, m *repository.StockMovement, newBalance int) {
	p.publish(ctx, messaging.EventMovementRecorded, messaging.MovementRecordedEvent{
		MovementID:     m.ID,
		ItemID:         m.ItemID,
		BatchID:        strOrEmpty(m.BatchID),
		Type:           m.Type,
		QuantityDelta:  m.QuantityDelta,
		NewBalance:     newBalance,
		Actor:          m.Actor,
		ReasonCode:     strOrEmpty(m.ReasonCode),
		RelatedOrderID: strOrEmpty(m.RelatedOrderID),
	})
}

// PublishStockReconciled announces a physical count adjustment
func (p *InventoryEventPublisher) PublishStockReconciled(ctx context.Context, itemID string, countedQty, delta int, reasonCode, actor string) {
	p.publish(ctx, messaging.EventStockReconciled, messaging.StockReconciledEvent{
		ItemID:     itemID,
		CountedQty: countedQty,
		Delta:      delta,
		ReasonCode: reasonCode,
		Actor:      actor,
	})
}

// PublishOrderCreated announces a new purchase order
func (p *InventoryEventPublisher) PublishOrderCreated(ctx context.Context, order *repository.PurchaseOrder) {
	p.publish(ctx, messaging.EventOrderCreated, messaging.OrderCreatedEvent{
		OrderID:    order.ID,
		SupplierID: order.SupplierID,
		LineCount:  len(order.Lines),
		Total:      order.Total().String(),
	})
}

// PublishOrderReceived announces posted receipts on an order
func (p *InventoryEventPublisher) PublishOrderReceived(ctx context.Context, order *repository.PurchaseOrder, lineCount int) {
	p.publish(ctx, messaging.EventOrderReceived, messaging.OrderReceivedEvent{
		OrderID:   order.ID,
		Status:    string(order.Status),
		LineCount: lineCount,
	})
}

// PublishOrderCancelled announces an order cancellation
func (p *InventoryEventPublisher) PublishOrderCancelled(ctx context.Context, order *repository.PurchaseOrder) {
	p.publish(ctx, messaging.EventOrderCancelled, messaging.OrderCancelledEvent{
		OrderID: order.ID,
		Status:  string(order.Status),
	})
}

// PublishAlertGenerated announces an alert raised by a scan
func (p *InventoryEventPublisher) PublishAlertGenerated(ctx context.Context, alertType, priority, message, itemID, batchID string) {
	p.publish(ctx, messaging.EventAlertGenerated, messaging.AlertGeneratedEvent{
		AlertType: alertType,
		Priority:  priority,
		Message:   message,
		ItemID:    itemID,
		BatchID:   batchID,
	})
}
