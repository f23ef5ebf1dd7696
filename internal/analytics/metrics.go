package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"portfolio-analytics-api/internal/models"
)

// tradingDays is the annualization convention used for every metric
const tradingDays = 252

// benchmarkReturns carries the aligned benchmark data the relative metrics
// (beta, alpha, information ratio, Treynor) are computed against. Nil means
// no benchmark could be fetched and those metrics degrade to zero.
type benchmarkReturns struct {
	Returns          []float64
	AnnualizedReturn float64
}

// ComputeMetrics derives the full metric set from the portfolio's total-value
// series, its day-over-day returns, and the per-holding valuation rows. The
// result is sanitized: NaN and Inf collapse to zero before it is returned.
func ComputeMetrics(values, returns []float64, holdings []models.HoldingAnalytics, bench *benchmarkReturns) models.MetricSet {
	m := models.MetricSet{}

	if len(returns) > 0 {
		m.DailyReturn = stat.Mean(returns, nil)
		m.Volatility = stat.StdDev(returns, nil)
	}
	m.AnnualizedReturn = m.DailyReturn * tradingDays

	if len(values) > 1 && values[0] != 0 {
		m.TotalReturn = (values[len(values)-1] - values[0]) / values[0]
	}

	if m.Volatility != 0 {
		m.SharpeRatio = m.DailyReturn / m.Volatility * math.Sqrt(tradingDays)
	}

	m.SortinoRatio = sortino(m.DailyReturn, returns)
	m.MaxDrawdown = MaxDrawdown(returns)
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}

	m.ValueAtRisk95 = ValueAtRisk(returns, 0.95)
	m.ExpectedShortfall = ExpectedShortfall(returns, m.ValueAtRisk95)

	m.WinRate = winRate(holdings)
	m.Concentration = Concentration(holdings)

	if bench != nil {
		m.Beta = Beta(returns, bench.Returns)
		m.Alpha = m.AnnualizedReturn - m.Beta*bench.AnnualizedReturn
		m.InformationRatio = informationRatio(returns, bench.Returns)
		if m.Beta != 0 {
			m.TreynorRatio = m.AnnualizedReturn / m.Beta
		}
	}

	sanitizeMetricSet(&m)
	return m
}

// sortino is the downside-deviation analogue of Sharpe. Zero when the series
// has no negative returns.
func sortino(dailyReturn float64, returns []float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	dd := stat.StdDev(downside, nil)
	if dd == 0 {
		return 0
	}
	return dailyReturn / dd * math.Sqrt(tradingDays)
}

// MaxDrawdown computes the deepest peak-to-trough decline of the cumulative
// value implied by the return series. Always ≤ 0.
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	cumulative := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		if peak != 0 {
			dd := (cumulative - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// ValueAtRisk returns the historical (non-parametric) VaR at the given
// confidence level: the (1-confidence) quantile of the return distribution.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	return stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
}

// ExpectedShortfall averages the returns at or below the VaR threshold.
func ExpectedShortfall(returns []float64, varThreshold float64) float64 {
	var tail []float64
	for _, r := range returns {
		if r <= varThreshold {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return 0
	}
	return stat.Mean(tail, nil)
}

// Beta measures the portfolio's sensitivity to the benchmark over their
// overlapping observations. Zero when the benchmark shows no variance.
func Beta(portfolio, benchmark []float64) float64 {
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return 0
	}
	p := portfolio[len(portfolio)-n:]
	b := benchmark[len(benchmark)-n:]
	variance := stat.Variance(b, nil)
	if variance == 0 {
		return 0
	}
	return stat.Covariance(p, b, nil) / variance
}

// informationRatio is the annualized mean active return over its tracking error.
func informationRatio(portfolio, benchmark []float64) float64 {
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return 0
	}
	p := portfolio[len(portfolio)-n:]
	b := benchmark[len(benchmark)-n:]
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = p[i] - b[i]
	}
	te := stat.StdDev(diff, nil)
	if te == 0 {
		return 0
	}
	return stat.Mean(diff, nil) / te * math.Sqrt(tradingDays)
}

// winRate is the percentage of holdings sitting on an unrealized gain.
func winRate(holdings []models.HoldingAnalytics) float64 {
	if len(holdings) == 0 {
		return 0
	}
	winners := 0
	for _, h := range holdings {
		if h.GainLoss.IsPositive() {
			winners++
		}
	}
	return float64(winners) / float64(len(holdings)) * 100
}

// Concentration is the Herfindahl index of the holding value weights: 1/n for
// n equal-weighted holdings, 1.0 for a single-holding portfolio.
func Concentration(holdings []models.HoldingAnalytics) float64 {
	total := 0.0
	for _, h := range holdings {
		total += h.CurrentValue.InexactFloat64()
	}
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range holdings {
		w := h.CurrentValue.InexactFloat64() / total
		sum += w * w
	}
	return sum
}

// sanitizeMetricSet is the single scrub point for numeric degeneracy: any
// NaN or Inf produced by an unguarded edge case becomes 0.0 here, so callers
// never see one.
func sanitizeMetricSet(m *models.MetricSet) {
	fields := []*float64{
		&m.DailyReturn, &m.AnnualizedReturn, &m.TotalReturn, &m.Volatility,
		&m.SharpeRatio, &m.SortinoRatio, &m.CalmarRatio, &m.MaxDrawdown,
		&m.ValueAtRisk95, &m.ExpectedShortfall, &m.Beta, &m.Alpha,
		&m.InformationRatio, &m.TreynorRatio, &m.WinRate, &m.Concentration,
	}
	for _, f := range fields {
		*f = sanitize(*f)
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
