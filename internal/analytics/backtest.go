package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/series"
)

// Backtest simulates holding the portfolio's current positions over a past
// window and reports how they would have performed. Uses the same fetch and
// alignment pipeline as Analyze.
func (e *Engine) Backtest(ctx context.Context, portfolio *models.Portfolio, start, end time.Time) (*models.BacktestResult, error) {
	if len(portfolio.Holdings) == 0 {
		return nil, ErrNoHoldings
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrInsufficientHistory)
	}

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
	if frame.Len() < 2 {
		return nil, fmt.Errorf("%w: %d observations in backtest window", ErrInsufficientHistory, frame.Len())
	}

	holdings := filterHoldings(portfolio.Holdings, frame)
	if len(holdings) == 0 {
		return nil, ErrNoValidData
	}

	values := portfolioValueSeries(holdings, frame)
	if values[0] == 0 {
		return nil, ErrZeroPortfolioValue
	}
	returns := valueReturns(values)

	initial := values[0]
	final := values[len(values)-1]
	totalReturn := (final - initial) / initial

	// geometric annualization over the actual observation count
	annualized := math.Pow(final/initial, tradingDays/float64(len(values))) - 1

	best := models.DayReturn{Date: frame.Dates[1], Return: returns[0]}
	worst := best
	for i, r := range returns {
		if r > best.Return {
			best = models.DayReturn{Date: frame.Dates[i+1], Return: r}
		}
		if r < worst.Return {
			worst = models.DayReturn{Date: frame.Dates[i+1], Return: r}
		}
	}

	rows := make([]models.BacktestHolding, 0, len(holdings))
	for _, h := range holdings {
		col, _ := frame.Column(h.Symbol)
		shares := h.Shares.InexactFloat64()
		rows = append(rows, models.BacktestHolding{
			Symbol:       h.Symbol,
			Shares:       h.Shares,
			InitialValue: shares * col[0],
			FinalValue:   shares * col[len(col)-1],
		})
	}

	holdingRows, _ := e.valueHoldings(holdings, frame, fetched)

	return &models.BacktestResult{
		PortfolioID:      portfolio.ID.Hex(),
		StartDate:        frame.Dates[0],
		EndDate:          frame.Dates[len(frame.Dates)-1],
		InitialValue:     initial,
		FinalValue:       final,
		TotalReturn:      sanitize(totalReturn),
		AnnualizedReturn: sanitize(annualized),
		Metrics:          ComputeMetrics(values, returns, holdingRows, nil),
		HistoricalValue:  historicalPoints(frame.Dates, values),
		BestDay:          best,
		WorstDay:         worst,
		Holdings:         rows,
	}, nil
}
