package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
)

type fakeMarket struct {
	history    map[string][]models.PricePoint
	quotes     map[string]*models.InstrumentInfo
	historyErr map[string]error
}

func (f *fakeMarket) GetHistory(_ context.Context, symbol string, _, _ time.Time) ([]models.PricePoint, error) {
	if err, ok := f.historyErr[symbol]; ok {
		return nil, err
	}
	return f.history[symbol], nil
}

func (f *fakeMarket) GetQuote(_ context.Context, symbol string) (*models.InstrumentInfo, error) {
	if info, ok := f.quotes[symbol]; ok {
		return info, nil
	}
	return nil, nil
}

func pricePoints(startDate string, closes ...float64) []models.PricePoint {
	start, _ := time.Parse("2006-01-02", startDate)
	points := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = models.PricePoint{
			Date:  start.AddDate(0, 0, i),
			Close: decimal.NewFromFloat(c),
		}
	}
	return points
}

func testEngine(market MarketData) *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := config.AnalyticsConfig{
		DefaultPeriod:     "1y",
		BenchmarkSymbols:  []string{"^GSPC"},
		MinCorrelationObs: 3,
	}
	return NewEngine(market, cfg, 5*time.Second, logger)
}

func testHolding(symbol string, shares, price float64) models.Holding {
	return models.Holding{
		Symbol:        symbol,
		Shares:        decimal.NewFromFloat(shares),
		PurchasePrice: decimal.NewFromFloat(price),
		PurchaseDate:  time.Now().AddDate(0, -6, 0),
	}
}

func testPortfolio(holdings ...models.Holding) *models.Portfolio {
	return &models.Portfolio{
		ID:       primitive.NewObjectID(),
		OwnerID:  "user-1",
		Name:     "Growth",
		Holdings: holdings,
	}
}

func TestAnalyzeEmptyHoldings(t *testing.T) {
	engine := testEngine(&fakeMarket{})

	result, err := engine.Analyze(context.Background(), testPortfolio(), "1y")

	require.NoError(t, err)
	assert.NotEmpty(t, result.Message)
	assert.Empty(t, result.Holdings)
}

func TestAnalyzeValuation(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 120, 130, 140, 150),
			"MSFT": pricePoints("2024-01-01", 210, 200, 190, 180),
		},
		quotes: map[string]*models.InstrumentInfo{
			"AAPL": {Symbol: "AAPL", Sector: "Technology"},
			"MSFT": {Symbol: "MSFT", Sector: "Technology"},
		},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(
		testHolding("AAPL", 10, 100),
		testHolding("MSFT", 5, 200),
	)

	result, err := engine.Analyze(context.Background(), portfolio, "1y")
	require.NoError(t, err)

	// 10×150 + 5×180 = 2400 current, 10×100 + 5×200 = 2000 at purchase
	assert.True(t, result.TotalValue.Equal(decimal.NewFromInt(2400)), "total value = %s", result.TotalValue)

	totalGain := decimal.Zero
	purchaseTotal := decimal.Zero
	for _, h := range result.Holdings {
		totalGain = totalGain.Add(h.GainLoss)
		purchaseTotal = purchaseTotal.Add(h.PurchaseValue)
	}
	assert.True(t, purchaseTotal.Equal(decimal.NewFromInt(2000)), "purchase value = %s", purchaseTotal)
	assert.True(t, totalGain.Equal(decimal.NewFromInt(400)), "gain = %s", totalGain)

	assert.Len(t, result.HistoricalValue, 4)
	assert.Equal(t, "2024-01-01", result.StartDate)
	assert.Equal(t, "2024-01-04", result.EndDate)

	tech, ok := result.SectorBreakdown["Technology"]
	require.True(t, ok)
	assert.InDelta(t, 100.0, tech.Weight, 1e-9)
}

func TestAnalyzeSkipsBadSymbol(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 101, 102),
		},
		historyErr: map[string]error{
			"FAKE": errors.New("provider exploded"),
		},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(
		testHolding("AAPL", 1, 90),
		testHolding("FAKE", 1, 50),
	)

	result, err := engine.Analyze(context.Background(), portfolio, "1y")
	require.NoError(t, err)

	require.Len(t, result.Holdings, 1)
	assert.Equal(t, "AAPL", result.Holdings[0].Symbol)
}

func TestAnalyzeNoValidData(t *testing.T) {
	engine := testEngine(&fakeMarket{})

	portfolio := testPortfolio(testHolding("GHOST", 1, 10))

	_, err := engine.Analyze(context.Background(), portfolio, "1y")
	assert.ErrorIs(t, err, ErrNoValidData)
}

func TestAnalyzeZeroPortfolioValue(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"ZERO": pricePoints("2024-01-01", 0, 0, 0),
		},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(testHolding("ZERO", 10, 0))

	_, err := engine.Analyze(context.Background(), portfolio, "1y")
	assert.ErrorIs(t, err, ErrZeroPortfolioValue)
}

func TestAnalyzeFlatSeriesMetrics(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 100, 100, 100, 100),
		},
	}
	engine := testEngine(market)

	result, err := engine.Analyze(context.Background(), testPortfolio(testHolding("AAPL", 1, 100)), "1y")
	require.NoError(t, err)

	assert.Zero(t, result.Metrics.Volatility)
	assert.Zero(t, result.Metrics.SharpeRatio)
	assert.Zero(t, result.Metrics.MaxDrawdown)
	assert.Zero(t, result.Metrics.TotalReturn)
	assert.InDelta(t, 1.0, result.Metrics.Concentration, 1e-9)
}

func TestAnalyzeForwardFillsGaps(t *testing.T) {
	aapl := pricePoints("2024-01-01", 100, 110, 120)
	msft := []models.PricePoint{
		{Date: mustDate("2024-01-01"), Close: decimal.NewFromInt(50)},
		{Date: mustDate("2024-01-03"), Close: decimal.NewFromInt(60)},
	}
	market := &fakeMarket{
		history: map[string][]models.PricePoint{"AAPL": aapl, "MSFT": msft},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(testHolding("AAPL", 1, 90), testHolding("MSFT", 1, 40))
	result, err := engine.Analyze(context.Background(), portfolio, "1y")
	require.NoError(t, err)

	require.Len(t, result.HistoricalValue, 3)
	// Jan 2: AAPL 110 + MSFT carried forward at 50
	assert.InDelta(t, 160.0, result.HistoricalValue[1].Value, 1e-9)
}

func TestAnalyzeBenchmarkComparison(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL":  pricePoints("2024-01-01", 100, 105, 110, 120),
			"^GSPC": pricePoints("2024-01-01", 4000, 4040, 4080, 4120),
		},
	}
	engine := testEngine(market)

	result, err := engine.Analyze(context.Background(), testPortfolio(testHolding("AAPL", 1, 100)), "1y")
	require.NoError(t, err)

	bench, ok := result.Benchmarks["^GSPC"]
	require.True(t, ok)
	assert.Equal(t, "S&P 500", bench.Name)
	require.Len(t, bench.Series, 4)
	// normalized to the portfolio's starting value
	assert.InDelta(t, 100.0, bench.Series[0].Value, 1e-9)
	assert.InDelta(t, 0.03, bench.TotalReturn, 1e-9)
	assert.NotZero(t, result.Metrics.Beta)
}

// slowMarket delays configured symbols so fetch completion order differs
// from configured order.
type slowMarket struct {
	*fakeMarket
	delays map[string]time.Duration
}

func (s *slowMarket) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	if d, ok := s.delays[symbol]; ok {
		time.Sleep(d)
	}
	return s.fakeMarket.GetHistory(ctx, symbol, start, end)
}

func TestAnalyzeBetaUsesFirstConfiguredBenchmark(t *testing.T) {
	// ^GSPC moves in lockstep with the portfolio (beta 1); ^IXIC has constant
	// returns (zero variance, beta 0). Delaying ^GSPC makes ^IXIC finish
	// first, so an ordering bug would flip beta to 0.
	market := &slowMarket{
		fakeMarket: &fakeMarket{
			history: map[string][]models.PricePoint{
				"AAPL":  pricePoints("2024-01-01", 100, 110, 99),
				"^GSPC": pricePoints("2024-01-01", 200, 220, 198),
				"^IXIC": pricePoints("2024-01-01", 100, 105, 110.25),
			},
		},
		delays: map[string]time.Duration{"^GSPC": 50 * time.Millisecond},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine := NewEngine(market, config.AnalyticsConfig{
		DefaultPeriod:     "1y",
		BenchmarkSymbols:  []string{"^GSPC", "^IXIC"},
		MinCorrelationObs: 3,
	}, 5*time.Second, logger)

	result, err := engine.Analyze(context.Background(), testPortfolio(testHolding("AAPL", 1, 100)), "1y")
	require.NoError(t, err)

	require.Len(t, result.Benchmarks, 2)
	assert.InDelta(t, 1.0, result.Metrics.Beta, 1e-9)
}

func TestAnalyzeBenchmarkUnavailableDegradesToZero(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 105, 98, 112),
		},
	}
	engine := testEngine(market)

	result, err := engine.Analyze(context.Background(), testPortfolio(testHolding("AAPL", 1, 100)), "1y")
	require.NoError(t, err)

	assert.Empty(t, result.Benchmarks)
	assert.Zero(t, result.Metrics.Beta)
	assert.Zero(t, result.Metrics.Alpha)
	assert.Zero(t, result.Metrics.TreynorRatio)
}

func TestAnalyzeCorrelationInsufficientSymbols(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 101, 102, 103, 104),
		},
	}
	engine := testEngine(market)

	_, err := engine.AnalyzeCorrelation(context.Background(), testPortfolio(testHolding("AAPL", 1, 90)), "1y")
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestAnalyzeCorrelationInsufficientObservations(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 101),
			"MSFT": pricePoints("2024-01-01", 200, 202),
		},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(testHolding("AAPL", 1, 90), testHolding("MSFT", 1, 180))
	_, err := engine.AnalyzeCorrelation(context.Background(), portfolio, "1y")
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestAnalyzeCorrelationPerfectlyCorrelated(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 110, 105, 120, 115),
			"COPY": pricePoints("2024-01-01", 200, 220, 210, 240, 230),
		},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(testHolding("AAPL", 1, 90), testHolding("COPY", 1, 180))
	report, err := engine.AnalyzeCorrelation(context.Background(), portfolio, "1y")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.AverageCorrelation, 1e-9)
	assert.InDelta(t, 0.0, report.DiversificationScore, 1e-9)
	require.Len(t, report.HighlyCorrelated, 1)
	assert.InDelta(t, 1.0, report.HighlyCorrelated[0].Correlation, 1e-9)
}

func TestAnalyzeCorrelationScoreBounds(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"UP":   pricePoints("2024-01-01", 100, 110, 120, 130, 140),
			"DOWN": pricePoints("2024-01-01", 100, 90, 80, 70, 60),
		},
	}
	engine := testEngine(market)

	portfolio := testPortfolio(testHolding("UP", 1, 90), testHolding("DOWN", 1, 110))
	report, err := engine.AnalyzeCorrelation(context.Background(), portfolio, "1y")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.DiversificationScore, 0.0)
	assert.LessOrEqual(t, report.DiversificationScore, 100.0)
}

func TestBacktestComputesWindowReturns(t *testing.T) {
	market := &fakeMarket{
		history: map[string][]models.PricePoint{
			"AAPL": pricePoints("2024-01-01", 100, 105, 95, 110, 120),
		},
	}
	engine := testEngine(market)

	start := mustDate("2024-01-01")
	end := mustDate("2024-01-05")
	result, err := engine.Backtest(context.Background(), testPortfolio(testHolding("AAPL", 2, 100)), start, end)
	require.NoError(t, err)

	assert.InDelta(t, 200.0, result.InitialValue, 1e-9)
	assert.InDelta(t, 240.0, result.FinalValue, 1e-9)
	assert.InDelta(t, 0.20, result.TotalReturn, 1e-9)
	assert.Equal(t, "2024-01-04", result.BestDay.Date) // 95 -> 110
	assert.Equal(t, "2024-01-03", result.WorstDay.Date)
}

func TestBacktestRejectsInvertedWindow(t *testing.T) {
	engine := testEngine(&fakeMarket{})

	start := mustDate("2024-06-01")
	end := mustDate("2024-01-01")
	_, err := engine.Backtest(context.Background(), testPortfolio(testHolding("AAPL", 1, 100)), start, end)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
