package analytics

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/stat"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/series"
)

// benchmarkNames maps index tickers to display names for the comparison chart.
var benchmarkNames = map[string]string{
	"^GSPC": "S&P 500",
	"^IXIC": "NASDAQ Composite",
	"^DJI":  "Dow Jones Industrial Average",
}

func benchmarkName(symbol string) string {
	if name, ok := benchmarkNames[symbol]; ok {
		return name
	}
	return symbol
}

// compareBenchmarks fetches the configured benchmark indices over the
// portfolio's date window, aligns each onto the portfolio index, and
// normalizes it to the portfolio's starting value for same-axis charting.
// Unreachable benchmarks are skipped; the first configured benchmark that
// survives supplies the return series beta and alpha are computed against.
// When none survive it returns nil and the relative metrics degrade to zero.
func (e *Engine) compareBenchmarks(ctx context.Context, dates []string, values []float64) (map[string]models.BenchmarkComparison, *benchmarkReturns) {
	comparisons := make(map[string]models.BenchmarkComparison)
	if len(dates) < 2 || len(values) == 0 {
		return comparisons, nil
	}

	start, end, err := windowDates(dates)
	if err != nil {
		e.logger.WithError(err).Warn("Benchmark comparison skipped: unparseable date window")
		return comparisons, nil
	}

	portfolioReturns := valueReturns(values)
	portfolioAnnualized := 0.0
	if len(portfolioReturns) > 0 {
		portfolioAnnualized = stat.Mean(portfolioReturns, nil) * tradingDays
	}

	fetched := make(map[string]*series.Series, len(e.cfg.BenchmarkSymbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range e.cfg.BenchmarkSymbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
			defer cancel()

			points, err := e.market.GetHistory(fetchCtx, symbol, start, end)
			if err != nil || len(points) == 0 {
				e.logger.WithField("benchmark", symbol).Warn("Benchmark unavailable, skipping")
				return
			}
			s := series.New()
			for _, p := range points {
				s.SetTime(p.Date, p.Close.InexactFloat64())
			}
			mu.Lock()
			fetched[symbol] = s
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	// Walk the configured order, not fetch completion order, so the primary
	// benchmark is stable across identical requests.
	var primary *benchmarkReturns
	for _, symbol := range e.cfg.BenchmarkSymbols {
		prices, ok := fetched[symbol]
		if !ok {
			continue
		}
		aligned := alignToIndex(prices, dates)
		if aligned == nil {
			continue
		}

		benchReturns := valueReturns(aligned)
		totalReturn := 0.0
		if aligned[0] != 0 {
			totalReturn = (aligned[len(aligned)-1] - aligned[0]) / aligned[0]
		}
		annualized := 0.0
		if len(benchReturns) > 0 {
			annualized = stat.Mean(benchReturns, nil) * tradingDays
		}

		// normalize to the portfolio's starting value
		normalized := make([]models.ValuePoint, len(aligned))
		scale := 0.0
		if aligned[0] != 0 {
			scale = values[0] / aligned[0]
		}
		for i, v := range aligned {
			normalized[i] = models.ValuePoint{Date: dates[i], Value: v * scale}
		}

		comparisons[symbol] = models.BenchmarkComparison{
			Symbol:           symbol,
			Name:             benchmarkName(symbol),
			Series:           normalized,
			TotalReturn:      sanitize(totalReturn),
			AnnualizedReturn: sanitize(annualized),
			Outperformance:   sanitize(portfolioAnnualized - annualized),
		}

		if primary == nil {
			primary = &benchmarkReturns{Returns: benchReturns, AnnualizedReturn: annualized}
		}
	}

	return comparisons, primary
}

// alignToIndex projects a price series onto a target date index with forward
// fill, then backward fill for leading gaps. Nil if the series is empty.
func alignToIndex(s *series.Series, dates []string) []float64 {
	if s.Len() == 0 {
		return nil
	}
	out := make([]float64, len(dates))
	last := 0.0
	firstIdx := -1
	for i, d := range dates {
		if v, ok := s.Get(d); ok {
			last = v
			if firstIdx == -1 {
				firstIdx = i
			}
		}
		out[i] = last
	}
	if firstIdx == -1 {
		// no overlap with the index at all: carry the series' first value
		v, _ := s.First()
		for i := range out {
			out[i] = v
		}
		return out
	}
	for i := 0; i < firstIdx; i++ {
		out[i] = out[firstIdx]
	}
	return out
}
