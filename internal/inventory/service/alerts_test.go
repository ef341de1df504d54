package service

import (
	"testing"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertTestItem() *repository.Item {
	return &repository.Item{
		ID:           "item-1",
		Name:         "Ibuprofen 400mg",
		MinStock:     20,
		CurrentStock: 100,
	}
}

func batchExpiring(days int) *repository.Batch {
	return &repository.Batch{
		ID:         "batch-1",
		ItemID:     "item-1",
		LotNumber:  "LOT-0001",
		ExpiryDate: time.Now().UTC().AddDate(0, 0, days),
		Quantity:   30,
	}
}

func TestDaysUntil_WholeDays(t *testing.T) {
	now := time.Date(2026, 8, 27, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, 0, daysUntil(now, time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, daysUntil(now, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -2, daysUntil(now, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30, daysUntil(now, time.Date(2026, 9, 26, 6, 0, 0, 0, time.UTC)))
}

func TestExpiryAlert_Buckets(t *testing.T) {
	item := alertTestItem()

	tests := []struct {
		name     string
		days     int
		priority string
		action   string
	}{
		{"expired", -3, PriorityHigh, ActionDestroy},
		{"expires today", 0, PriorityHigh, ActionPrioritizeDispensing},
		{"high boundary", 30, PriorityHigh, ActionPrioritizeDispensing},
		{"just past high", 31, PriorityMedium, ActionDiscountTransfer},
		{"medium boundary", 90, PriorityMedium, ActionDiscountTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := expiryAlert(item, batchExpiring(tt.days), tt.days, 30, 90)
			require.NotNil(t, alert)
			assert.Equal(t, AlertTypeExpiry, alert.Type)
			assert.Equal(t, tt.priority, alert.Priority)
			assert.Equal(t, tt.action, alert.Action)
			assert.Equal(t, tt.days, *alert.DaysUntilExpiry)
		})
	}
}

func TestExpiryAlert_BeyondMediumHorizonIsExcluded(t *testing.T) {
	item := alertTestItem()

	// The alert list is bounded: far-future expiry produces nothing
	assert.Nil(t, expiryAlert(item, batchExpiring(91), 91, 30, 90))
	assert.Nil(t, expiryAlert(item, batchExpiring(365), 365, 30, 90))
}

func TestLowStockAlert_Priorities(t *testing.T) {
	item := alertTestItem()

	item.CurrentStock = 15
	alert := lowStockAlert(item)
	assert.Equal(t, AlertTypeLowStock, alert.Type)
	assert.Equal(t, PriorityMedium, alert.Priority)
	assert.Equal(t, ActionReorderSoon, alert.Action)

	item.CurrentStock = 10
	alert = lowStockAlert(item)
	assert.Equal(t, PriorityHigh, alert.Priority)
	assert.Equal(t, ActionReorderNow, alert.Action)

	item.CurrentStock = 0
	alert = lowStockAlert(item)
	assert.Equal(t, PriorityHigh, alert.Priority)
	assert.Equal(t, ActionReorderNow, alert.Action)
}
