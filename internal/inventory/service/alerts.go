package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// Alert types
const (
	AlertTypeExpiry   = "expiry"
	AlertTypeLowStock = "low_stock"
)

// Alert priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Recommended actions
const (
	ActionPrioritizeDispensing = "prioritize dispensing"
	ActionDiscountTransfer     = "discount/transfer"
	ActionDestroy              = "destroy"
	ActionReorderNow           = "reorder now"
	ActionReorderSoon          = "reorder soon"
)

// Alert is one ranked finding of an inventory scan
type Alert struct {
	Type            string `json:"type"`
	Priority        string `json:"priority"`
	ItemID          string `json:"item_id"`
	ItemName        string `json:"item_name"`
	BatchID         string `json:"batch_id,omitempty"`
	LotNumber       string `json:"lot_number,omitempty"`
	DaysUntilExpiry *int   `json:"days_until_expiry,omitempty"`
	CurrentStock    int    `json:"current_stock"`
	MinStock        int    `json:"min_stock,omitempty"`
	Message         string `json:"message"`
	Action          string `json:"action"`
}

// AlertService scans the repository for near-expiry batches and
// low-stock items. Scans are read-only and stateless; each call
// recomputes the full picture from current state.
type AlertService struct {
	itemRepo  *repository.ItemRepository
	batchRepo *repository.BatchRepository
	publisher *events.InventoryEventPublisher
	cfg       config.AlertsConfig
	logger    *logger.Logger

	now func() time.Time
}

// NewAlertService creates a new alert service
func NewAlertService(
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.InventoryEventPublisher,
	cfg config.AlertsConfig,
	log *logger.Logger,
) *AlertService {
	return &AlertService{
		itemRepo:  itemRepo,
		batchRepo: batchRepo,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
}

// daysUntil counts whole days from today to the given date, negative
// when the date has passed.
func daysUntil(now, date time.Time) int {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dateDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(dateDay.Sub(nowDay).Hours() / 24)
}

func expiryAlert(item *repository.Item, batch *repository.Batch, days, highDays, mediumDays int) *Alert {
	alert := &Alert{
		Type:            AlertTypeExpiry,
		ItemID:          item.ID,
		ItemName:        item.Name,
		BatchID:         batch.ID,
		LotNumber:       batch.LotNumber,
		DaysUntilExpiry: &days,
		CurrentStock:    item.CurrentStock,
	}

	switch {
	case days < 0:
		alert.Priority = PriorityHigh
		alert.Action = ActionDestroy
		alert.Message = fmt.Sprintf("lot %s of %s expired %d days ago", batch.LotNumber, item.Name, -days)
	case days <= highDays:
		alert.Priority = PriorityHigh
		alert.Action = ActionPrioritizeDispensing
		alert.Message = fmt.Sprintf("lot %s of %s expires in %d days", batch.LotNumber, item.Name, days)
	case days <= mediumDays:
		alert.Priority = PriorityMedium
		alert.Action = ActionDiscountTransfer
		alert.Message = fmt.Sprintf("lot %s of %s expires in %d days", batch.LotNumber, item.Name, days)
	default:
		// Beyond the medium horizon the list stays bounded: no alert
		return nil
	}

	return alert
}

func lowStockAlert(item *repository.Item) *Alert {
	alert := &Alert{
		Type:         AlertTypeLowStock,
		ItemID:       item.ID,
		ItemName:     item.Name,
		CurrentStock: item.CurrentStock,
		MinStock:     item.MinStock,
	}

	if StockStatus(item.CurrentStock, item.MinStock) == StockStatusCritical {
		alert.Priority = PriorityHigh
		alert.Action = ActionReorderNow
	} else {
		alert.Priority = PriorityMedium
		alert.Action = ActionReorderSoon
	}
	alert.Message = fmt.Sprintf("%s stock at %d, minimum %d", item.Name, item.CurrentStock, item.MinStock)

	return alert
}

// Scan computes the current alert list: near-expiry batches within the
// medium horizon and items at or below their minimum threshold. Sorted
// by priority, then ascending days to expiry.
func (s *AlertService) Scan(ctx context.Context) ([]*Alert, error) {
	now := s.now().UTC()

	// Only batches inside the medium horizon can produce alerts; the
	// repository already excludes the rest.
	batches, err := s.batchRepo.GetExpiringWithin(ctx, s.cfg.ExpiryMediumDays)
	if err != nil {
		return nil, err
	}

	items, err := s.itemRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}
	itemByID := make(map[string]*repository.Item, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}

	var alerts []*Alert

	for _, batch := range batches {
		item := itemByID[batch.ItemID]
		if item == nil {
			continue
		}
		days := daysUntil(now, batch.ExpiryDate)
		if alert := expiryAlert(item, batch, days, s.cfg.ExpiryHighDays, s.cfg.ExpiryMediumDays); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	// Low stock is flagged independently of expiry state
	for _, item := range items {
		if item.CurrentStock <= item.MinStock {
			alerts = append(alerts, lowStockAlert(item))
		}
	}

	rank := map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}
	sort.SliceStable(alerts, func(i, j int) bool {
		if rank[alerts[i].Priority] != rank[alerts[j].Priority] {
			return rank[alerts[i].Priority] < rank[alerts[j].Priority]
		}
		return alertDays(alerts[i]) < alertDays(alerts[j])
	})

	return alerts, nil
}

func alertDays(a *Alert) int {
	if a.DaysUntilExpiry == nil {
		// Low-stock alerts sort after expiry alerts of equal priority
		return 1 << 30
	}
	return *a.DaysUntilExpiry
}

// ScanAndPublish runs a scan and publishes one event per alert. Used by
// the periodic scheduler; the HTTP surface calls Scan directly.
func (s *AlertService) ScanAndPublish(ctx context.Context) ([]*Alert, error) {
	alerts, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, alert := range alerts {
		s.publisher.PublishAlertGenerated(ctx, alert.Type, alert.Priority, alert.Message, alert.ItemID, alert.BatchID)
	}

	s.logger.Info().Int("alerts", len(alerts)).Msg("alert scan completed")

	return alerts, nil
}

// AlertScheduler periodically runs alert scans in the background
type AlertScheduler struct {
	alerts   *AlertService
	interval time.Duration
	logger   *logger.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewAlertScheduler creates a scheduler running scans at the given interval
func NewAlertScheduler(alerts *AlertService, interval time.Duration, log *logger.Logger) *AlertScheduler {
	return &AlertScheduler{
		alerts:   alerts,
		interval: interval,
		logger:   log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scan loop. Call Stop to terminate it.
func (s *AlertScheduler) Start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().Dur("interval", s.interval).Msg("alert scheduler started")

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := s.alerts.ScanAndPublish(ctx); err != nil {
					s.logger.Error().Err(err).Msg("scheduled alert scan failed")
				}
				cancel()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the scan loop and waits for it to exit
func (s *AlertScheduler) Stop() {
	close(s.stop)
	<-s.done
}
