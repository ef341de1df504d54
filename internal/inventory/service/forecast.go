package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// Reorder urgency levels
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// Estimator names reported on each forecast so consumers can tell how
// the projection was produced.
const (
	EstimatorLinearTrend   = "linear_trend"
	EstimatorMovingAverage = "moving_average"
	EstimatorThreshold     = "threshold_fallback"
)

// MonthPoint is one zero-filled month of the consumption series
type MonthPoint struct {
	Month    string `json:"month"`
	Quantity int    `json:"quantity"`
}

// Forecast is the reorder recommendation for one item
type Forecast struct {
	ItemID                  string       `json:"item_id"`
	ItemName                string       `json:"item_name"`
	Series                  []MonthPoint `json:"series"`
	Estimator               string       `json:"estimator"`
	ProjectedMonthlyDemand  float64      `json:"projected_monthly_demand"`
	AverageDailyConsumption float64      `json:"average_daily_consumption"`
	CurrentStock            int          `json:"current_stock"`
	DaysUntilStockout       *int         `json:"days_until_stockout,omitempty"`
	LeadTimeDays            int          `json:"lead_time_days"`
	SafetyStock             int          `json:"safety_stock"`
	RecommendedOrderQty     int          `json:"recommended_order_qty"`
	Urgency                 string       `json:"urgency"`
	Confidence              int          `json:"confidence"`
}

// CategoryShare is one slice of the consumption distribution
type CategoryShare struct {
	Category string  `json:"category"`
	Quantity int     `json:"quantity"`
	Share    float64 `json:"share"`
}

// Analytics is the aggregate consumption report
type Analytics struct {
	PeriodMonths    int             `json:"period_months"`
	Series          []MonthPoint    `json:"series"`
	Distribution    []CategoryShare `json:"distribution"`
	Recommendations []*Forecast     `json:"recommendations"`
}

// ForecastService derives reorder advice from the dispense history in
// the movement ledger. Forecasts are computed on demand and never
// stored; the ledger is the single source of truth.
type ForecastService struct {
	itemRepo     *repository.ItemRepository
	movementRepo *repository.MovementRepository
	supplierRepo *repository.SupplierRepository
	cfg          config.ForecastConfig
	logger       *logger.Logger

	// now is swappable for deterministic tests
	now func() time.Time
}

// NewForecastService creates a new forecast service
func NewForecastService(
	itemRepo *repository.ItemRepository,
	movementRepo *repository.MovementRepository,
	supplierRepo *repository.SupplierRepository,
	cfg config.ForecastConfig,
	log *logger.Logger,
) *ForecastService {
	return &ForecastService{
		itemRepo:     itemRepo,
		movementRepo: movementRepo,
		supplierRepo: supplierRepo,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
	}
}

// monthStart truncates t to the first instant of its calendar month
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// fillMonthlySeries expands sparse month buckets into a dense series
// covering the trailing window, oldest first, gaps as zero.
func fillMonthlySeries(buckets []*repository.MonthlyConsumption, until time.Time, windowMonths int) []MonthPoint {
	byMonth := make(map[string]int, len(buckets))
	for _, b := range buckets {
		byMonth[monthStart(b.Month.UTC()).Format("2006-01")] = b.Quantity
	}

	series := make([]MonthPoint, 0, windowMonths)
	first := monthStart(until).AddDate(0, -(windowMonths - 1), 0)
	for i := 0; i < windowMonths; i++ {
		key := first.AddDate(0, i, 0).Format("2006-01")
		series = append(series, MonthPoint{Month: key, Quantity: byMonth[key]})
	}
	return series
}

// linearTrend fits y = a + b·x by least squares over the series indices
// and returns the projection for the next index. Requires ≥3 points.
func linearTrend(series []MonthPoint) (float64, bool) {
	n := len(series)
	if n < 3 {
		return 0, false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range series {
		x := float64(i)
		y := float64(p.Quantity)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}

	b := (fn*sumXY - sumX*sumY) / denom
	a := (sumY - b*sumX) / fn

	projected := a + b*fn
	if projected < 0 {
		projected = 0
	}
	return projected, true
}

// movingAverage returns the mean of the series quantities
func movingAverage(series []MonthPoint) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0
	for _, p := range series {
		sum += p.Quantity
	}
	return float64(sum) / float64(len(series))
}

// confidenceScore maps the inverse coefficient of variation of the
// series onto [0,100]. A flat series scores 100; a series with the
// standard deviation equal to the mean scores 0. Fewer than 2 months
// of history is no history at all: 0.
func confidenceScore(series []MonthPoint) int {
	nonzero := 0
	for _, p := range series {
		if p.Quantity > 0 {
			nonzero++
		}
	}
	if nonzero < 2 {
		return 0
	}

	mean := movingAverage(series)
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, p := range series {
		d := float64(p.Quantity) - mean
		variance += d * d
	}
	variance /= float64(len(series))
	cv := math.Sqrt(variance) / mean

	score := (1 - cv) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}

// urgencyFor classifies the reorder urgency from the projected stockout
// horizon against the supplier lead time.
func urgencyFor(daysUntilStockout *int, leadTimeDays int) string {
	if daysUntilStockout == nil {
		return UrgencyLow
	}
	switch {
	case *daysUntilStockout <= leadTimeDays:
		return UrgencyHigh
	case *daysUntilStockout <= 2*leadTimeDays:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func (s *ForecastService) leadTimeFor(ctx context.Context, item *repository.Item) int {
	if item.SupplierID != nil {
		supplier, err := s.supplierRepo.GetByID(ctx, *item.SupplierID)
		if err == nil && supplier.LeadTimeDays > 0 {
			return supplier.LeadTimeDays
		}
	}
	return s.cfg.DefaultLeadTimeDays
}

// ForecastItem computes the reorder recommendation for one item over
// the given trailing window (0 uses the configured default).
func (s *ForecastService) ForecastItem(ctx context.Context, itemID string, windowMonths int) (*Forecast, error) {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.forecastFor(ctx, item, windowMonths)
}

func (s *ForecastService) forecastFor(ctx context.Context, item *repository.Item, windowMonths int) (*Forecast, error) {
	if windowMonths <= 0 {
		windowMonths = s.cfg.WindowMonths
	}
	if windowMonths > 36 {
		return nil, errors.Validation(map[string]string{"window_months": "must not exceed 36"})
	}

	now := s.now().UTC()
	since := monthStart(now).AddDate(0, -(windowMonths - 1), 0)

	buckets, err := s.movementRepo.MonthlyDispenseByItem(ctx, item.ID, since)
	if err != nil {
		return nil, err
	}
	series := fillMonthlySeries(buckets, now, windowMonths)

	leadTime := s.leadTimeFor(ctx, item)

	f := &Forecast{
		ItemID:       item.ID,
		ItemName:     item.Name,
		Series:       series,
		CurrentStock: item.CurrentStock,
		LeadTimeDays: leadTime,
		Confidence:   confidenceScore(series),
	}

	total := 0
	for _, p := range series {
		total += p.Quantity
	}
	windowDays := now.Sub(since).Hours() / 24
	if windowDays < 1 {
		windowDays = 1
	}
	f.AverageDailyConsumption = float64(total) / windowDays

	nonzero := 0
	for _, p := range series {
		if p.Quantity > 0 {
			nonzero++
		}
	}

	// With under 2 months of signal the estimators have nothing to work
	// with; fall back to topping the stock up to the minimum threshold.
	if nonzero < 2 {
		f.Estimator = EstimatorThreshold
		f.Urgency = UrgencyLow
		if item.CurrentStock < item.MinStock {
			f.RecommendedOrderQty = item.MinStock - item.CurrentStock
		}
		return f, nil
	}

	if projected, ok := linearTrend(series); ok {
		f.Estimator = EstimatorLinearTrend
		f.ProjectedMonthlyDemand = projected
	} else {
		f.Estimator = EstimatorMovingAverage
		f.ProjectedMonthlyDemand = movingAverage(series)
	}

	if f.AverageDailyConsumption > 0 {
		days := int(math.Floor(float64(item.CurrentStock) / f.AverageDailyConsumption))
		f.DaysUntilStockout = &days

		safety := float64(leadTime) * f.AverageDailyConsumption * s.cfg.SafetyStockFactor
		f.SafetyStock = int(math.Ceil(safety))

		recommended := f.ProjectedMonthlyDemand + float64(f.SafetyStock) - float64(item.CurrentStock)
		if recommended > 0 {
			f.RecommendedOrderQty = int(math.Ceil(recommended))
		}
	}

	f.Urgency = urgencyFor(f.DaysUntilStockout, leadTime)

	return f, nil
}

// Recommendations computes forecasts for every active item and returns
// the ones that recommend ordering, most urgent first.
func (s *ForecastService) Recommendations(ctx context.Context, windowMonths int) ([]*Forecast, error) {
	items, err := s.itemRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}

	var recs []*Forecast
	for _, item := range items {
		f, err := s.forecastFor(ctx, item, windowMonths)
		if err != nil {
			return nil, err
		}
		if f.RecommendedOrderQty > 0 {
			recs = append(recs, f)
		}
	}

	rank := map[string]int{UrgencyHigh: 0, UrgencyMedium: 1, UrgencyLow: 2}
	sort.SliceStable(recs, func(i, j int) bool {
		if rank[recs[i].Urgency] != rank[recs[j].Urgency] {
			return rank[recs[i].Urgency] < rank[recs[j].Urgency]
		}
		return stockoutDays(recs[i]) < stockoutDays(recs[j])
	})

	return recs, nil
}

func stockoutDays(f *Forecast) int {
	if f.DaysUntilStockout == nil {
		return math.MaxInt32
	}
	return *f.DaysUntilStockout
}

// GetAnalytics aggregates consumption for the external analytics
// surface: the monthly series, the category distribution, and the
// current reorder recommendations.
func (s *ForecastService) GetAnalytics(ctx context.Context, periodMonths int, category string) (*Analytics, error) {
	if periodMonths <= 0 {
		periodMonths = s.cfg.WindowMonths
	}
	if periodMonths > 36 {
		return nil, errors.Validation(map[string]string{"period": "must not exceed 36 months"})
	}

	now := s.now().UTC()
	since := monthStart(now).AddDate(0, -(periodMonths - 1), 0)

	buckets, err := s.movementRepo.MonthlyDispenseByCategory(ctx, category, since)
	if err != nil {
		return nil, err
	}
	series := fillMonthlySeries(buckets, now, periodMonths)

	byCategory, err := s.movementRepo.DispenseByCategory(ctx, since)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range byCategory {
		total += c.Quantity
	}
	distribution := make([]CategoryShare, len(byCategory))
	for i, c := range byCategory {
		share := 0.0
		if total > 0 {
			share = float64(c.Quantity) / float64(total)
		}
		distribution[i] = CategoryShare{Category: c.Category, Quantity: c.Quantity, Share: share}
	}

	recs, err := s.Recommendations(ctx, periodMonths)
	if err != nil {
		return nil, err
	}

	return &Analytics{
		PeriodMonths:    periodMonths,
		Series:          series,
		Distribution:    distribution,
		Recommendations: recs,
	}, nil
}
