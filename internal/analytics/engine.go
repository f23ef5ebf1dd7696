package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/series"
)

// MarketData is the price source contract the engine depends on. An unknown
// symbol returns an empty result, not an error.
type MarketData interface {
	GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
	GetQuote(ctx context.Context, symbol string) (*models.InstrumentInfo, error)
}

// Engine runs the analytics pipeline: concurrent price fetch, series
// alignment, valuation, metric computation, and benchmark comparison.
type Engine struct {
	market       MarketData
	cfg          config.AnalyticsConfig
	fetchTimeout time.Duration
	logger       *logrus.Logger
}

func NewEngine(market MarketData, cfg config.AnalyticsConfig, fetchTimeout time.Duration, logger *logrus.Logger) *Engine {
	return &Engine{
		market:       market,
		cfg:          cfg,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// periodWindow resolves a lookback period name to a [start, end] date range
// ending today. Unknown periods fall back to one year.
func (e *Engine) periodWindow(period string) (time.Time, time.Time) {
	end := time.Now().UTC()
	switch strings.ToLower(period) {
	case "1mo":
		return end.AddDate(0, -1, 0), end
	case "3mo":
		return end.AddDate(0, -3, 0), end
	case "6mo":
		return end.AddDate(0, -6, 0), end
	case "2y":
		return end.AddDate(-2, 0, 0), end
	case "5y":
		return end.AddDate(-5, 0, 0), end
	default:
		return end.AddDate(-1, 0, 0), end
	}
}

type symbolData struct {
	prices *series.Series
	info   *models.InstrumentInfo
}

// fetchSymbols retrieves price history and quote profiles for all symbols
// concurrently. Symbols that fail, time out, or come back empty are dropped;
// the surviving set is returned.
func (e *Engine) fetchSymbols(ctx context.Context, symbols []string, start, end time.Time) map[string]*symbolData {
	results := make(map[string]*symbolData, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
			defer cancel()

			points, err := e.market.GetHistory(fetchCtx, symbol, start, end)
			if err != nil {
				e.logger.WithError(err).WithField("symbol", symbol).Warn("Skipping symbol: history fetch failed")
				return
			}
			if len(points) == 0 {
				e.logger.WithField("symbol", symbol).Warn("Skipping symbol: no price history")
				return
			}

			s := series.New()
			for _, p := range points {
				s.SetTime(p.Date, p.Close.InexactFloat64())
			}

			info, err := e.market.GetQuote(fetchCtx, symbol)
			if err != nil {
				e.logger.WithError(err).WithField("symbol", symbol).Debug("Quote fetch failed, sector data unavailable")
				info = nil
			}

			mu.Lock()
			results[symbol] = &symbolData{prices: s, info: info}
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
	return results
}

// Analyze runs the full pipeline for a portfolio over the given lookback
// period and returns the complete analysis result.
func (e *Engine) Analyze(ctx context.Context, portfolio *models.Portfolio, period string) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		PortfolioID:   portfolio.ID.Hex(),
		PortfolioName: portfolio.Name,
		Benchmarks:    make(map[string]models.BenchmarkComparison),
	}

	if len(portfolio.Holdings) == 0 {
		result.Message = "Portfolio has no holdings to analyze"
		return result, nil
	}

	if period == "" {
		period = e.cfg.DefaultPeriod
	}
	start, end := e.periodWindow(period)

	symbols := uniqueSymbols(portfolio.Holdings)
	fetched := e.fetchSymbols(ctx, symbols, start, end)
	if len(fetched) == 0 {
		return nil, ErrNoValidData
	}

	columns := make(map[string]*series.Series, len(fetched))
	for symbol, data := range fetched {
		columns[symbol] = data.prices
	}
	frame := series.Align(columns)
	if frame == nil {
		return nil, ErrNoValidData
	}

	// holdings whose symbol did not survive the fetch/alignment are excluded
	holdings := filterHoldings(portfolio.Holdings, frame)
	if len(holdings) == 0 {
		return nil, ErrNoValidData
	}

	rows, totalValue := e.valueHoldings(holdings, frame, fetched)
	if totalValue.IsZero() {
		return nil, ErrZeroPortfolioValue
	}

	values := portfolioValueSeries(holdings, frame)
	returns := valueReturns(values)

	result.Holdings = rows
	result.TotalValue = totalValue
	result.HistoricalValue = historicalPoints(frame.Dates, values)
	result.StartDate = frame.Dates[0]
	result.EndDate = frame.Dates[len(frame.Dates)-1]
	result.SectorBreakdown = sectorBreakdown(rows)

	comparisons, bench := e.compareBenchmarks(ctx, frame.Dates, values)
	result.Benchmarks = comparisons
	result.Metrics = ComputeMetrics(values, returns, rows, bench)

	return result, nil
}

// valueHoldings prices each holding off the latest aligned close and totals
// the portfolio. Sector and industry come from the quote profile when one
// was available.
func (e *Engine) valueHoldings(holdings []models.Holding, frame *series.Frame, fetched map[string]*symbolData) ([]models.HoldingAnalytics, decimal.Decimal) {
	rows := make([]models.HoldingAnalytics, 0, len(holdings))
	total := decimal.Zero

	for _, h := range holdings {
		col, ok := frame.Column(h.Symbol)
		if !ok || len(col) == 0 {
			continue
		}
		currentPrice := decimal.NewFromFloat(col[len(col)-1])
		currentValue := h.Shares.Mul(currentPrice)
		purchaseValue := h.Shares.Mul(h.PurchasePrice)

		row := models.HoldingAnalytics{
			Symbol:        h.Symbol,
			Shares:        h.Shares,
			PurchasePrice: h.PurchasePrice,
			CurrentPrice:  currentPrice,
			CurrentValue:  currentValue,
			PurchaseValue: purchaseValue,
			GainLoss:      currentValue.Sub(purchaseValue),
			PurchaseDate:  h.PurchaseDate,
			Sector:        "Unknown",
		}
		if data := fetched[h.Symbol]; data != nil && data.info != nil {
			if data.info.Sector != "" {
				row.Sector = data.info.Sector
			}
			row.Industry = data.info.Industry
		}

		rows = append(rows, row)
		total = total.Add(currentValue)
	}
	return rows, total
}

// portfolioValueSeries computes the literal dollar value of the portfolio at
// each date of the aligned index: sum of shares × price across holdings.
// Compounding and shifting relative weights fall out of it naturally.
func portfolioValueSeries(holdings []models.Holding, frame *series.Frame) []float64 {
	values := make([]float64, frame.Len())
	for _, h := range holdings {
		col, ok := frame.Column(h.Symbol)
		if !ok {
			continue
		}
		shares := h.Shares.InexactFloat64()
		for i, price := range col {
			values[i] += shares * price
		}
	}
	return values
}

// valueReturns converts a value series to day-over-day fractional returns,
// dropping the undefined first observation.
func valueReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

func historicalPoints(dates []string, values []float64) []models.ValuePoint {
	points := make([]models.ValuePoint, len(dates))
	for i, d := range dates {
		points[i] = models.ValuePoint{Date: d, Value: values[i]}
	}
	return points
}

// sectorBreakdown aggregates holding weights by sector.
func sectorBreakdown(rows []models.HoldingAnalytics) map[string]models.SectorAllocation {
	total := 0.0
	for _, r := range rows {
		total += r.CurrentValue.InexactFloat64()
	}
	out := make(map[string]models.SectorAllocation)
	if total == 0 {
		return out
	}
	for _, r := range rows {
		alloc := out[r.Sector]
		alloc.Value += r.CurrentValue.InexactFloat64()
		alloc.Holdings = append(alloc.Holdings, r.Symbol)
		out[r.Sector] = alloc
	}
	for sector, alloc := range out {
		alloc.Weight = alloc.Value / total * 100
		sort.Strings(alloc.Holdings)
		out[sector] = alloc
	}
	return out
}

func uniqueSymbols(holdings []models.Holding) []string {
	seen := make(map[string]struct{}, len(holdings))
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbol := strings.ToUpper(h.Symbol)
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	return symbols
}

func filterHoldings(holdings []models.Holding, frame *series.Frame) []models.Holding {
	out := make([]models.Holding, 0, len(holdings))
	for _, h := range holdings {
		h.Symbol = strings.ToUpper(h.Symbol)
		if _, ok := frame.Column(h.Symbol); ok {
			out = append(out, h)
		}
	}
	return out
}

// windowDates parses the edge dates of an aligned frame index.
func windowDates(dates []string) (time.Time, time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("empty date index")
	}
	start, err := time.Parse(series.DateFormat, dates[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(series.DateFormat, dates[len(dates)-1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
