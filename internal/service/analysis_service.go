package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-ledger/internal/analysis"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidAnalysis is returned for malformed analysis parameters
var ErrInvalidAnalysis = errors.New("invalid analysis request")

// Comparison modes
const (
	CompareMonthOverMonth = "mom"
	CompareYearOverYear   = "yoy"
)

// AnalysisConfig holds the analysis defaults
type AnalysisConfig struct {
	CutoffA       decimal.Decimal
	CutoffB       decimal.Decimal
	DeadStockDays int
	RankingLimit  int
}

// DefaultAnalysisConfig returns 80/95 ABC cutoffs, 90 idle days and a top 30 ranking
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		CutoffA:       decimal.NewFromInt(80),
		CutoffB:       decimal.NewFromInt(95),
		DeadStockDays: 90,
		RankingLimit:  30,
	}
}

// AnalysisService runs the analytics over the reconciled movement log
type AnalysisService struct {
	stock  *StockService
	cfg    AnalysisConfig
	logger *zap.Logger
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(stock *StockService, cfg AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		stock:  stock,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// Report is the dashboard overview of a record set
type Report struct {
	Summary   analysis.Summary        `json:"summary"`
	Ranking   []analysis.ItemTotal    `json:"ranking"`
	Locations []analysis.Share        `json:"locations"`
	Weekdays  []analysis.WeekdayTotal `json:"weekdays"`
	Daily     []analysis.DailyTotal   `json:"daily"`
}

// Comparison is a per-item comparison of two periods
type Comparison struct {
	Mode     string                   `json:"mode"`
	Current  analysis.Period          `json:"current"`
	Previous analysis.Period          `json:"previous"`
	Rows     []analysis.ComparisonRow `json:"rows"`
}

// Report summarizes the records matching filter. Without kinds the filter selects shipments.
func (a *AnalysisService) Report(ctx context.Context, filter ledger.MovementFilter) (*Report, error) {
	ctx, span := util.StartSpan(ctx, "AnalysisService.Report")
	defer span.End()

	movs, err := a.records(ctx, filter)
	if err != nil {
		return nil, err
	}

	loc := a.stock.Location()
	return &Report{
		Summary:   analysis.Summarize(movs),
		Ranking:   analysis.Ranking(movs, a.cfg.RankingLimit),
		Locations: analysis.LocationShare(movs),
		Weekdays:  analysis.WeekdayTotals(movs, loc),
		Daily:     analysis.DailyTrend(movs, loc),
	}, nil
}

// ABC classifies items by their share of the total quantity
func (a *AnalysisService) ABC(ctx context.Context, filter ledger.MovementFilter) ([]analysis.ABCRow, error) {
	ctx, span := util.StartSpan(ctx, "AnalysisService.ABC")
	defer span.End()

	movs, err := a.records(ctx, filter)
	if err != nil {
		return nil, err
	}
	return analysis.ABC(analysis.Totals(movs), a.cfg.CutoffA, a.cfg.CutoffB), nil
}

// SafetyStock estimates mean + 2 stdev per item
func (a *AnalysisService) SafetyStock(ctx context.Context, filter ledger.MovementFilter) ([]analysis.SafetyStockRow, error) {
	ctx, span := util.StartSpan(ctx, "AnalysisService.SafetyStock")
	defer span.End()

	movs, err := a.records(ctx, filter)
	if err != nil {
		return nil, err
	}
	return analysis.SafetyStock(movs), nil
}

// DeadStock lists rows holding stock with no shipment in idleDays. idleDays <= 0 uses the default.
func (a *AnalysisService) DeadStock(ctx context.Context, idleDays int) ([]analysis.DeadStockRow, error) {
	ctx, span := util.StartSpan(ctx, "AnalysisService.DeadStock")
	defer span.End()

	if idleDays <= 0 {
		idleDays = a.cfg.DeadStockDays
	}

	snap, err := a.stock.Current(ctx)
	if err != nil {
		return nil, err
	}

	shipments := snap.Log.Query(ledger.MovementFilter{Kinds: shipmentKinds()}, ledger.Ascending)
	return analysis.DeadStock(snap.Ledger.Entries(), shipments, a.stock.now(), idleDays), nil
}

// Compare totals each item in the month containing month against the previous month (mom)
// or the same month a year earlier (yoy). A zero month means the current month.
func (a *AnalysisService) Compare(ctx context.Context, filter ledger.MovementFilter, mode string, month time.Time) (*Comparison, error) {
	ctx, span := util.StartSpan(ctx, "AnalysisService.Compare")
	defer span.End()

	if month.IsZero() {
		month = a.stock.now()
	}
	month = month.In(a.stock.Location())

	var current, previous analysis.Period
	switch mode {
	case CompareMonthOverMonth, "":
		mode = CompareMonthOverMonth
		current, previous = analysis.MonthOverMonth(month)
	case CompareYearOverYear:
		current, previous = analysis.YearOverYear(month)
	default:
		return nil, fmt.Errorf("unknown comparison mode %q: %w", mode, ErrInvalidAnalysis)
	}

	movs, err := a.records(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Mode:     mode,
		Current:  current,
		Previous: previous,
		Rows:     analysis.Compare(movs, current, previous),
	}, nil
}

func (a *AnalysisService) records(ctx context.Context, filter ledger.MovementFilter) ([]models.Movement, error) {
	snap, err := a.stock.Current(ctx)
	if err != nil {
		return nil, err
	}

	if len(filter.Kinds) == 0 {
		filter.Kinds = shipmentKinds()
	}
	movs := snap.Log.Query(filter, ledger.Ascending)
	a.logger.Debug("Analysis records selected", zap.Int("records", len(movs)))
	return movs, nil
}

func shipmentKinds() []models.MovementKind {
	return []models.MovementKind{models.KindOutbound, models.KindReservationFulfilled}
}
