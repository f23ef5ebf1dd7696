package views

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/analytics"
	"portfolio-analytics-api/internal/models"
)

type quoteFake struct {
	quotes map[string]*models.InstrumentInfo
}

func (f *quoteFake) GetHistory(context.Context, string, time.Time, time.Time) ([]models.PricePoint, error) {
	return nil, nil
}

func (f *quoteFake) GetQuote(_ context.Context, symbol string) (*models.InstrumentInfo, error) {
	return f.quotes[symbol], nil
}

func analyticsRow(symbol string, shares, price, purchasePrice float64, sector string, purchaseDate time.Time) models.HoldingAnalytics {
	sh := decimal.NewFromFloat(shares)
	cp := decimal.NewFromFloat(price)
	pp := decimal.NewFromFloat(purchasePrice)
	cv := sh.Mul(cp)
	pv := sh.Mul(pp)
	return models.HoldingAnalytics{
		Symbol:        symbol,
		Shares:        sh,
		PurchasePrice: pp,
		CurrentPrice:  cp,
		CurrentValue:  cv,
		PurchaseValue: pv,
		GainLoss:      cv.Sub(pv),
		PurchaseDate:  purchaseDate,
		Sector:        sector,
	}
}

func resultWith(rows ...models.HoldingAnalytics) *models.AnalysisResult {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.CurrentValue)
	}
	return &models.AnalysisResult{
		PortfolioID:   primitive.NewObjectID().Hex(),
		PortfolioName: "Growth",
		TotalValue:    total,
		Holdings:      rows,
	}
}

func TestHealthScoreEmptyPortfolio(t *testing.T) {
	hs := ComputeHealthScore(&models.AnalysisResult{Message: "Portfolio has no holdings to analyze"})

	assert.Zero(t, hs.Score)
	assert.Equal(t, []string{"Add holdings to calculate health score"}, hs.Suggestions)
	assert.Len(t, hs.Categories, 5)
}

func TestHealthScoreWithinBounds(t *testing.T) {
	now := time.Now()
	result := resultWith(
		analyticsRow("AAPL", 10, 150, 100, "Technology", now.AddDate(-1, 0, 0)),
		analyticsRow("JNJ", 5, 160, 150, "Healthcare", now.AddDate(-1, 0, 0)),
	)
	result.Metrics = models.MetricSet{
		SharpeRatio:   1.2,
		SortinoRatio:  1.5,
		TotalReturn:   0.20,
		Concentration: 0.55,
		MaxDrawdown:   -0.08,
		ValueAtRisk95: -0.02,
		Volatility:    0.012,
	}
	result.SectorBreakdown = map[string]models.SectorAllocation{
		"Technology": {Value: 1500, Weight: 65.2},
		"Healthcare": {Value: 800, Weight: 34.8},
	}

	hs := ComputeHealthScore(result)

	assert.Greater(t, hs.Score, 0.0)
	assert.LessOrEqual(t, hs.Score, 100.0)
	for name, c := range hs.Categories {
		assert.GreaterOrEqual(t, c.Score, 0.0, name)
		assert.LessOrEqual(t, c.Score, 100.0, name)
	}
	assert.NotEmpty(t, hs.Suggestions)
}

func TestHealthScoreRecordRoundsCategories(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 1, 100, 90, "Technology", time.Now()))
	result.Metrics = models.MetricSet{Concentration: 1.0}

	hs := ComputeHealthScore(result)
	record := hs.Record()

	assert.Equal(t, hs.Score, record.Score)
	assert.Len(t, record.Categories, 5)
}

func TestRebalancePlanDriftActions(t *testing.T) {
	now := time.Now()
	// AAPL 60%, MSFT 40% of a 1000 portfolio; both targeted at 50%, tolerance 5
	result := resultWith(
		analyticsRow("AAPL", 6, 100, 100, "Technology", now),
		analyticsRow("MSFT", 4, 100, 100, "Technology", now),
	)
	portfolio := &models.Portfolio{
		Holdings: []models.Holding{{Symbol: "AAPL"}, {Symbol: "MSFT"}},
		TargetAllocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: 50, Tolerance: 5},
			"MSFT": {TargetPercent: 50, Tolerance: 5},
		},
	}

	rebalancer := newTestRebalancer(nil)
	plan, err := rebalancer.Plan(context.Background(), portfolio, result, true)
	require.NoError(t, err)

	bySymbol := make(map[string]RebalanceSuggestion)
	for _, s := range plan.Suggestions {
		bySymbol[s.Symbol] = s
	}

	assert.Equal(t, "SELL", bySymbol["AAPL"].Action)
	assert.InDelta(t, 10.0, bySymbol["AAPL"].Drift, 1e-9)
	assert.Equal(t, "BUY", bySymbol["MSFT"].Action)
	assert.InDelta(t, -10.0, bySymbol["MSFT"].Drift, 1e-9)
	assert.True(t, plan.NeedsRebalancing)
}

func TestRebalancePlanWithinTolerance(t *testing.T) {
	now := time.Now()
	result := resultWith(
		analyticsRow("AAPL", 52, 10, 10, "Technology", now),
		analyticsRow("MSFT", 48, 10, 10, "Technology", now),
	)
	portfolio := &models.Portfolio{
		TargetAllocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: 50, Tolerance: 5},
			"MSFT": {TargetPercent: 50, Tolerance: 5},
		},
	}

	plan, err := newTestRebalancer(nil).Plan(context.Background(), portfolio, result, true)
	require.NoError(t, err)

	for _, s := range plan.Suggestions {
		assert.Equal(t, "HOLD", s.Action, s.Symbol)
	}
	assert.False(t, plan.NeedsRebalancing)
}

func TestRebalancePlanToleranceIsStrictest(t *testing.T) {
	now := time.Now()
	// AAPL drifts +4 points; the 2% MSFT tolerance must govern the band no
	// matter which target the map yields first.
	result := resultWith(
		analyticsRow("AAPL", 54, 10, 10, "Technology", now),
		analyticsRow("MSFT", 46, 10, 10, "Technology", now),
	)
	portfolio := &models.Portfolio{
		TargetAllocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: 50, Tolerance: 10},
			"MSFT": {TargetPercent: 50, Tolerance: 2},
		},
	}

	plan, err := newTestRebalancer(nil).Plan(context.Background(), portfolio, result, true)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, plan.Tolerance, 1e-9)
	bySymbol := make(map[string]RebalanceSuggestion)
	for _, s := range plan.Suggestions {
		bySymbol[s.Symbol] = s
	}
	assert.Equal(t, "SELL", bySymbol["AAPL"].Action)
	assert.Equal(t, "BUY", bySymbol["MSFT"].Action)
}

func TestRebalancePlanLiquidatesUntargetedHolding(t *testing.T) {
	result := resultWith(
		analyticsRow("AAPL", 5, 100, 100, "Technology", time.Now()),
		analyticsRow("GME", 10, 20, 50, "Consumer Cyclical", time.Now()),
	)
	portfolio := &models.Portfolio{
		TargetAllocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: 100, Tolerance: 5},
		},
	}

	plan, err := newTestRebalancer(nil).Plan(context.Background(), portfolio, result, true)
	require.NoError(t, err)

	var gme *RebalanceSuggestion
	for i := range plan.Suggestions {
		if plan.Suggestions[i].Symbol == "GME" {
			gme = &plan.Suggestions[i]
		}
	}
	require.NotNil(t, gme)
	assert.Equal(t, "SELL", gme.Action)
	assert.InDelta(t, -10.0, gme.SharesToTrade, 1e-9)
	assert.Zero(t, gme.TargetShares)
}

func TestRebalancePlanProposesNewBuy(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 10, 100, 100, "Technology", time.Now()))
	portfolio := &models.Portfolio{
		TargetAllocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: 50, Tolerance: 5},
			"VTI":  {TargetPercent: 50, Tolerance: 5},
		},
	}
	market := &quoteFake{quotes: map[string]*models.InstrumentInfo{
		"VTI": {Symbol: "VTI", Price: decimal.NewFromInt(250)},
	}}

	plan, err := newTestRebalancer(market).Plan(context.Background(), portfolio, result, true)
	require.NoError(t, err)

	var vti *RebalanceSuggestion
	for i := range plan.Suggestions {
		if plan.Suggestions[i].Symbol == "VTI" {
			vti = &plan.Suggestions[i]
		}
	}
	require.NotNil(t, vti)
	assert.Equal(t, "BUY", vti.Action)
	// 50% of 1000 = 500 at $250 = 2 shares
	assert.InDelta(t, 2.0, vti.TargetShares, 1e-9)
}

func TestRebalancePlanRequiresTargets(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 1, 100, 100, "Technology", time.Now()))
	_, err := newTestRebalancer(nil).Plan(context.Background(), &models.Portfolio{}, result, true)
	assert.ErrorIs(t, err, ErrNoTargetAllocations)
}

func newTestRebalancer(market analytics.MarketData) *Rebalancer {
	if market == nil {
		market = &quoteFake{}
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRebalancer(market, logger)
}

func crashPct(v float64) *float64 {
	return &v
}

func TestScenarioMarketCrash(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 10, 100, 100, "Technology", time.Now()))

	sim, err := SimulateScenario(result, ScenarioRequest{
		ScenarioType:       ScenarioMarketCrash,
		MarketCrashPercent: crashPct(-20),
	})
	require.NoError(t, err)

	assert.InDelta(t, 1000.0, sim.CurrentValue, 1e-9)
	assert.InDelta(t, 800.0, sim.ScenarioValue, 1e-9)
	assert.InDelta(t, -200.0, sim.TotalChange, 1e-9)
	assert.InDelta(t, -20.0, sim.TotalChangePercent, 1e-9)
	require.Len(t, sim.Holdings, 1)
	assert.InDelta(t, 80.0, sim.Holdings[0].ScenarioPrice, 1e-9)
}

func TestScenarioMarketCrashDefaultPercent(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 10, 100, 100, "Technology", time.Now()))

	// No percent in the request: the crash falls back to -20%.
	sim, err := SimulateScenario(result, ScenarioRequest{ScenarioType: ScenarioMarketCrash})
	require.NoError(t, err)

	assert.InDelta(t, 800.0, sim.ScenarioValue, 1e-9)
	assert.InDelta(t, -200.0, sim.TotalChange, 1e-9)
	assert.InDelta(t, -20.0, sim.TotalChangePercent, 1e-9)
}

func TestScenarioRecessionSectorTable(t *testing.T) {
	result := resultWith(
		analyticsRow("AAPL", 10, 100, 100, "Technology", time.Now()),       // -25%
		analyticsRow("JNJ", 10, 100, 100, "Healthcare", time.Now()),        // -10%
		analyticsRow("MYSTERY", 10, 100, 100, "Unknown", time.Now()),       // default -20%
	)

	sim, err := SimulateScenario(result, ScenarioRequest{ScenarioType: ScenarioRecession})
	require.NoError(t, err)

	bySymbol := make(map[string]ScenarioHolding)
	for _, h := range sim.Holdings {
		bySymbol[h.Symbol] = h
	}
	assert.InDelta(t, -25.0, bySymbol["AAPL"].ChangePercent, 1e-9)
	assert.InDelta(t, -10.0, bySymbol["JNJ"].ChangePercent, 1e-9)
	assert.InDelta(t, -20.0, bySymbol["MYSTERY"].ChangePercent, 1e-9)
}

func TestScenarioCustomAdjustments(t *testing.T) {
	result := resultWith(
		analyticsRow("AAPL", 1, 100, 100, "Technology", time.Now()),
		analyticsRow("MSFT", 1, 100, 100, "Technology", time.Now()),
	)

	sim, err := SimulateScenario(result, ScenarioRequest{
		ScenarioType:      ScenarioCustom,
		CustomAdjustments: map[string]float64{"AAPL": 15},
	})
	require.NoError(t, err)

	bySymbol := make(map[string]ScenarioHolding)
	for _, h := range sim.Holdings {
		bySymbol[h.Symbol] = h
	}
	assert.InDelta(t, 115.0, bySymbol["AAPL"].ScenarioPrice, 1e-9)
	// untouched symbol keeps its price
	assert.InDelta(t, 100.0, bySymbol["MSFT"].ScenarioPrice, 1e-9)
}

func TestScenarioUnknownType(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 1, 100, 100, "Technology", time.Now()))
	_, err := SimulateScenario(result, ScenarioRequest{ScenarioType: "ALIEN_INVASION"})
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestScenarioVolatilityMultiplier(t *testing.T) {
	result := resultWith(analyticsRow("AAPL", 10, 100, 100, "Technology", time.Now()))
	result.Metrics.Volatility = 0.02

	mild, err := SimulateScenario(result, ScenarioRequest{ScenarioType: ScenarioMarketCrash, MarketCrashPercent: crashPct(-10)})
	require.NoError(t, err)
	severe, err := SimulateScenario(result, ScenarioRequest{ScenarioType: ScenarioMarketCrash, MarketCrashPercent: crashPct(-30)})
	require.NoError(t, err)

	assert.InDelta(t, 0.02*1.2*100, mild.ScenarioVolatility, 1e-9)
	assert.InDelta(t, 0.02*1.5*100, severe.ScenarioVolatility, 1e-9)
}

func TestTaxReportFindsLosses(t *testing.T) {
	now := time.Now()
	result := resultWith(
		analyticsRow("AAPL", 10, 150, 100, "Technology", now.AddDate(-2, 0, 0)), // +500 gain, long term
		analyticsRow("GME", 10, 20, 50, "Consumer Cyclical", now.AddDate(0, -3, 0)), // -300 loss, short term
	)

	report, err := ComputeTaxReport(result, nil, 0.25, now)
	require.NoError(t, err)

	assert.InDelta(t, 500.0, report.TotalUnrealizedGains, 1e-9)
	assert.InDelta(t, 300.0, report.TotalUnrealizedLosses, 1e-9)
	require.Len(t, report.Opportunities, 1)

	opp := report.Opportunities[0]
	assert.Equal(t, "GME", opp.Symbol)
	assert.InDelta(t, 300.0, opp.LossAmount, 1e-9)
	assert.InDelta(t, 75.0, opp.PotentialTaxSavings, 1e-9)
	assert.False(t, opp.IsLongTerm)
	assert.False(t, opp.WashSaleWarning)
	assert.Equal(t, 1, report.LongTermHoldings)
	assert.Equal(t, 1, report.ShortTermHoldings)
}

func TestTaxReportWashSaleWarning(t *testing.T) {
	now := time.Now()
	result := resultWith(
		analyticsRow("GME", 10, 20, 50, "Consumer Cyclical", now.AddDate(-1, 0, 0)),
	)
	transactions := []models.Transaction{
		{Symbol: "GME", Type: models.TransactionBuy, Timestamp: now.AddDate(0, 0, -10)},
	}

	report, err := ComputeTaxReport(result, transactions, 0.25, now)
	require.NoError(t, err)

	require.Len(t, report.Opportunities, 1)
	assert.True(t, report.Opportunities[0].WashSaleWarning)
}

func TestTaxReportOldTransactionNoWarning(t *testing.T) {
	now := time.Now()
	result := resultWith(
		analyticsRow("GME", 10, 20, 50, "Consumer Cyclical", now.AddDate(-1, 0, 0)),
	)
	transactions := []models.Transaction{
		{Symbol: "GME", Type: models.TransactionSell, Timestamp: now.AddDate(0, 0, -45)},
	}

	report, err := ComputeTaxReport(result, transactions, 0.25, now)
	require.NoError(t, err)

	require.Len(t, report.Opportunities, 1)
	assert.False(t, report.Opportunities[0].WashSaleWarning)
}

func TestTaxReportSortsBySavings(t *testing.T) {
	now := time.Now()
	result := resultWith(
		analyticsRow("SMALL", 1, 95, 100, "Technology", now),  // -5 loss
		analyticsRow("BIG", 10, 50, 100, "Technology", now),   // -500 loss
	)

	report, err := ComputeTaxReport(result, nil, 0.25, now)
	require.NoError(t, err)

	require.Len(t, report.Opportunities, 2)
	assert.Equal(t, "BIG", report.Opportunities[0].Symbol)
	assert.NotEmpty(t, report.Recommendations)
	assert.Equal(t, "high", report.Recommendations[0].Priority)
}

func TestTaxReportEmptyPortfolio(t *testing.T) {
	_, err := ComputeTaxReport(&models.AnalysisResult{Message: "no holdings"}, nil, 0.25, time.Now())
	assert.Error(t, err)
}
