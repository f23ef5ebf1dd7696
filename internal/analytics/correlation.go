package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/series"
)

// highCorrelationThreshold flags holding pairs that move together closely
// enough to be redundancy candidates.
const highCorrelationThreshold = 0.7

// AnalyzeCorrelation builds the pairwise return correlation matrix across the
// portfolio's holdings and derives the diversification score. Requires at
// least two symbols with usable data and a minimum number of overlapping
// observations; anything less fails with ErrInsufficientHistory.
func (e *Engine) AnalyzeCorrelation(ctx context.Context, portfolio *models.Portfolio, period string) (*models.CorrelationReport, error) {
	if len(portfolio.Holdings) == 0 {
		return nil, ErrNoHoldings
	}

	if period == "" {
		period = e.cfg.DefaultPeriod
	}
	start, end := e.periodWindow(period)

	symbols := uniqueSymbols(portfolio.Holdings)
	if len(symbols) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct symbols, have %d", ErrInsufficientHistory, len(symbols))
	}

	fetched := e.fetchSymbols(ctx, symbols, start, end)
	if len(fetched) == 0 {
		return nil, ErrNoValidData
	}
	if len(fetched) < 2 {
		return nil, fmt.Errorf("%w: only %d symbols have usable data", ErrInsufficientHistory, len(fetched))
	}

	columns := make(map[string]*series.Series, len(fetched))
	for symbol, data := range fetched {
		columns[symbol] = data.prices
	}
	frame := series.Align(columns)
	if frame == nil {
		return nil, ErrNoValidData
	}

	names := frame.Names()
	returnsBySymbol := make(map[string][]float64, len(names))
	obs := 0
	for _, name := range names {
		col, _ := frame.Column(name)
		rets := valueReturns(col)
		returnsBySymbol[name] = rets
		obs = len(rets)
	}
	if obs < e.cfg.MinCorrelationObs {
		return nil, fmt.Errorf("%w: %d overlapping observations, need %d", ErrInsufficientHistory, obs, e.cfg.MinCorrelationObs)
	}

	n := len(names)
	matrix := make([][]float64, n)
	var pairs []models.CorrelatedPair
	sumAbs := 0.0
	pairCount := 0

	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := sanitize(stat.Correlation(returnsBySymbol[names[i]], returnsBySymbol[names[j]], nil))
			matrix[i][j] = rho
			matrix[j][i] = rho
			sumAbs += math.Abs(rho)
			pairCount++
			if math.Abs(rho) > highCorrelationThreshold {
				pairs = append(pairs, models.CorrelatedPair{
					Symbol1:     names[i],
					Symbol2:     names[j],
					Correlation: rho,
				})
			}
		}
	}

	avg := 0.0
	if pairCount > 0 {
		avg = sumAbs / float64(pairCount)
	}
	// bespoke heuristic, not an industry-standard measure
	score := 100 * (1 - avg)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	report := &models.CorrelationReport{
		PortfolioID:          portfolio.ID.Hex(),
		Symbols:              names,
		Matrix:               matrix,
		AverageCorrelation:   sanitize(avg),
		DiversificationScore: score,
		HighlyCorrelated:     pairs,
		SectorDistribution:   sectorCounts(names, fetched),
		DataPoints:           obs,
	}
	report.Suggestions = diversificationSuggestions(report)
	return report, nil
}

func sectorCounts(symbols []string, fetched map[string]*symbolData) map[string]int {
	out := make(map[string]int)
	for _, symbol := range symbols {
		sector := "Unknown"
		if data := fetched[symbol]; data != nil && data.info != nil && data.info.Sector != "" {
			sector = data.info.Sector
		}
		out[sector]++
	}
	return out
}

func diversificationSuggestions(report *models.CorrelationReport) []string {
	var out []string
	if report.DiversificationScore < 40 {
		out = append(out, "Holdings move closely together; consider adding assets from uncorrelated sectors")
	}
	for _, pair := range report.HighlyCorrelated {
		out = append(out, fmt.Sprintf("%s and %s are highly correlated (%.2f); one may be redundant", pair.Symbol1, pair.Symbol2, pair.Correlation))
	}
	if len(report.SectorDistribution) == 1 {
		for sector := range report.SectorDistribution {
			out = append(out, fmt.Sprintf("All holdings sit in a single sector (%s)", sector))
		}
	}
	sort.Strings(out)
	return out
}
