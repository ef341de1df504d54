package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Ledger events
	EventMovementRecorded = "inventory.movement.recorded"
	EventStockReconciled  = "inventory.stock.reconciled"

	// Purchase order events
	EventOrderCreated   = "inventory.order.created"
	EventOrderReceived  = "inventory.order.received"
	EventOrderCancelled = "inventory.order.cancelled"

	// Alert events
	EventAlertGenerated = "inventory.alert.generated"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Ledger events

// MovementRecordedEvent is published after a stock movement commits
type MovementRecordedEvent struct {
	MovementID     string  `json:"movement_id"`
	ItemID         string  `json:"item_id"`
	BatchID        string  `json:"batch_id,omitempty"`
	Type           string  `json:"type"`
	QuantityDelta  int     `json:"quantity_delta"`
	NewBalance     int     `json:"new_balance"`
	Actor          string  `json:"actor"`
	ReasonCode     string  `json:"reason_code,omitempty"`
	RelatedOrderID string  `json:"related_order_id,omitempty"`
}

// StockReconciledEvent is published after a physical count adjustment
type StockReconciledEvent struct {
	ItemID     string `json:"item_id"`
	CountedQty int    `json:"counted_qty"`
	Delta      int    `json:"delta"`
	ReasonCode string `json:"reason_code"`
	Actor      string `json:"actor"`
}

// Purchase order events

// OrderCreatedEvent is published when a purchase order is created
type OrderCreatedEvent struct {
	OrderID    string `json:"order_id"`
	SupplierID string `json:"supplier_id"`
	LineCount  int    `json:"line_count"`
	Total      string `json:"total"`
}

// OrderReceivedEvent is published after receipts are posted to an order
type OrderReceivedEvent struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	LineCount int    `json:"line_count"`
}

// OrderCancelledEvent is published when an order is cancelled
type OrderCancelledEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Alert events

// AlertGeneratedEvent is published when an alert scan raises an alert
type AlertGeneratedEvent struct {
	AlertType string `json:"alert_type"`
	Priority  string `json:"priority"`
	Message   string `json:"message"`
	ItemID    string `json:"item_id"`
	BatchID   string `json:"batch_id,omitempty"`
}
