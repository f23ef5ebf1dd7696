package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetricSet is the fixed-shape metric record produced by the analytics engine.
// Conventions: returns, volatility, drawdown, VaR and expected shortfall are
// fractions (0.01 = 1%); WinRate is a percentage; Concentration is the
// Herfindahl index in [0, 1]. The engine never emits NaN or Inf values.
type MetricSet struct {
	DailyReturn       float64 `json:"daily_return"`
	AnnualizedReturn  float64 `json:"annualized_return"`
	TotalReturn       float64 `json:"total_return"`
	Volatility        float64 `json:"volatility"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	SortinoRatio      float64 `json:"sortino_ratio"`
	CalmarRatio       float64 `json:"calmar_ratio"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	ValueAtRisk95     float64 `json:"value_at_risk_95"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
	Beta              float64 `json:"beta"`
	Alpha             float64 `json:"alpha"`
	InformationRatio  float64 `json:"information_ratio"`
	TreynorRatio      float64 `json:"treynor_ratio"`
	WinRate           float64 `json:"win_rate"`
	Concentration     float64 `json:"concentration"`
}

// HoldingAnalytics is the per-holding valuation breakdown
type HoldingAnalytics struct {
	Symbol        string          `json:"symbol"`
	Shares        decimal.Decimal `json:"shares"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	PurchaseValue decimal.Decimal `json:"purchase_value"`
	GainLoss      decimal.Decimal `json:"gain_loss"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Sector        string          `json:"sector"`
	Industry      string          `json:"industry"`
}

// ValuePoint is one observation of the portfolio's total value through time
type ValuePoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// BenchmarkComparison compares the portfolio against one benchmark index
type BenchmarkComparison struct {
	Symbol           string       `json:"symbol"`
	Name             string       `json:"name"`
	Series           []ValuePoint `json:"series"` // normalized to the portfolio's starting value
	TotalReturn      float64      `json:"total_return"`
	AnnualizedReturn float64      `json:"annualized_return"`
	Outperformance   float64      `json:"outperformance"`
}

// SectorAllocation aggregates holdings by sector
type SectorAllocation struct {
	Weight   float64  `json:"weight"` // percent of portfolio value
	Value    float64  `json:"value"`
	Holdings []string `json:"holdings"`
}

// AnalysisResult is the full output of a portfolio analysis request
type AnalysisResult struct {
	PortfolioID     string                         `json:"portfolio_id"`
	PortfolioName   string                         `json:"portfolio_name"`
	Message         string                         `json:"message,omitempty"` // set for the empty-holdings variant
	TotalValue      decimal.Decimal                `json:"total_value"`
	Metrics         MetricSet                      `json:"metrics"`
	Holdings        []HoldingAnalytics             `json:"holdings"`
	HistoricalValue []ValuePoint                   `json:"historical_value"`
	Benchmarks      map[string]BenchmarkComparison `json:"benchmarks"`
	SectorBreakdown map[string]SectorAllocation    `json:"sector_breakdown"`
	StartDate       string                         `json:"start_date"`
	EndDate         string                         `json:"end_date"`
}

// CorrelatedPair flags two holdings whose returns move together
type CorrelatedPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// CorrelationReport is the output of the correlation and diversification analysis
type CorrelationReport struct {
	PortfolioID          string               `json:"portfolio_id"`
	Symbols              []string             `json:"symbols"`
	Matrix               [][]float64          `json:"matrix"`
	AverageCorrelation   float64              `json:"average_correlation"`
	DiversificationScore float64              `json:"diversification_score"`
	HighlyCorrelated     []CorrelatedPair     `json:"highly_correlated"`
	SectorDistribution   map[string]int       `json:"sector_distribution"`
	Suggestions          []string             `json:"suggestions"`
	DataPoints           int                  `json:"data_points"`
}

// BacktestResult summarizes a historical simulation of the current holdings
type BacktestResult struct {
	PortfolioID      string             `json:"portfolio_id"`
	StartDate        string             `json:"start_date"`
	EndDate          string             `json:"end_date"`
	InitialValue     float64            `json:"initial_value"`
	FinalValue       float64            `json:"final_value"`
	TotalReturn      float64            `json:"total_return"`      // fraction
	AnnualizedReturn float64            `json:"annualized_return"` // geometric, fraction
	Metrics          MetricSet          `json:"metrics"`
	HistoricalValue  []ValuePoint       `json:"historical_value"`
	BestDay          DayReturn          `json:"best_day"`
	WorstDay         DayReturn          `json:"worst_day"`
	Holdings         []BacktestHolding  `json:"holdings"`
}

// DayReturn pairs a date with its daily return
type DayReturn struct {
	Date   string  `json:"date"`
	Return float64 `json:"return"`
}

// BacktestHolding shows a holding's value at the window edges
type BacktestHolding struct {
	Symbol       string          `json:"symbol"`
	Shares       decimal.Decimal `json:"shares"`
	InitialValue float64         `json:"initial_value"`
	FinalValue   float64         `json:"final_value"`
}
