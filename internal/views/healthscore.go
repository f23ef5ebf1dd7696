// Package views derives user-facing analyses (health score, rebalancing,
// scenario simulation, tax optimization) from the analytics engine's output.
package views

import (
	"math"
	"time"

	"portfolio-analytics-api/internal/models"
)

// Category weights of the composite health score. The sub-score mappings are
// bespoke heuristics tuned for readability of the 0-100 scale, not industry
// standards.
const (
	weightDiversification = 0.25
	weightRiskAdjusted    = 0.25
	weightConcentration   = 0.20
	weightPerformance     = 0.20
	weightRiskManagement  = 0.10
)

// CategoryScore is one graded component of the health score.
type CategoryScore struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
}

// HealthScore is the weighted composite health grade of a portfolio.
type HealthScore struct {
	PortfolioID   string                   `json:"portfolio_id"`
	PortfolioName string                   `json:"portfolio_name"`
	Score         float64                  `json:"health_score"`
	Categories    map[string]CategoryScore `json:"categories"`
	Suggestions   []string                 `json:"suggestions"`
	Timestamp     time.Time                `json:"timestamp"`
}

func emptyCategories() map[string]CategoryScore {
	return map[string]CategoryScore{
		"diversification":       {MaxScore: 25},
		"risk_adjusted_returns": {MaxScore: 25},
		"concentration":         {MaxScore: 20},
		"performance":           {MaxScore: 20},
		"risk_management":       {MaxScore: 10},
	}
}

// ComputeHealthScore grades an analysis result across five categories and
// combines them into a single 0-100 score.
func ComputeHealthScore(result *models.AnalysisResult) *HealthScore {
	hs := &HealthScore{
		PortfolioID:   result.PortfolioID,
		PortfolioName: result.PortfolioName,
		Timestamp:     time.Now().UTC(),
	}

	if result.Message != "" || len(result.Holdings) == 0 {
		hs.Categories = emptyCategories()
		hs.Suggestions = []string{"Add holdings to calculate health score"}
		return hs
	}

	m := result.Metrics
	diversification := diversificationSubScore(result.SectorBreakdown)
	riskAdjusted := riskAdjustedSubScore(m.SharpeRatio, m.SortinoRatio)
	concentration := clampScore((1 - m.Concentration) * 100)
	performance := performanceSubScore(m.TotalReturn, result.Benchmarks)
	riskManagement := riskSubScore(m.MaxDrawdown, m.ValueAtRisk95, m.Volatility)

	hs.Score = round2(diversification*weightDiversification +
		riskAdjusted*weightRiskAdjusted +
		concentration*weightConcentration +
		performance*weightPerformance +
		riskManagement*weightRiskManagement)

	hs.Categories = map[string]CategoryScore{
		"diversification":       {Score: round2(diversification), MaxScore: 25},
		"risk_adjusted_returns": {Score: round2(riskAdjusted), MaxScore: 25},
		"concentration":         {Score: round2(concentration), MaxScore: 20},
		"performance":           {Score: round2(performance), MaxScore: 20},
		"risk_management":       {Score: round2(riskManagement), MaxScore: 10},
	}
	hs.Suggestions = healthSuggestions(diversification, riskAdjusted, concentration, performance, riskManagement)
	return hs
}

// Record converts the score into its persisted history form.
func (hs *HealthScore) Record() *models.HealthScoreRecord {
	categories := make(map[string]float64, len(hs.Categories))
	for name, c := range hs.Categories {
		categories[name] = c.Score
	}
	return &models.HealthScoreRecord{
		Score:      hs.Score,
		Categories: categories,
		Timestamp:  hs.Timestamp,
	}
}

// diversificationSubScore grades sector spread with a normalized Herfindahl
// index plus a small bonus for sector count. 50 when sector data is missing.
func diversificationSubScore(sectors map[string]models.SectorAllocation) float64 {
	if len(sectors) == 0 {
		return 50
	}
	total := 0.0
	for _, s := range sectors {
		total += s.Value
	}
	if total == 0 {
		return 0
	}

	herfindahl := 0.0
	for _, s := range sectors {
		w := s.Value / total
		herfindahl += w * w
	}

	n := len(sectors)
	minH := 1.0 / float64(n)
	score := 50.0
	if minH != 1.0 {
		score = clampScore((1.0 - herfindahl) / (1.0 - minH) * 100)
	}

	bonus := float64(n) * 2
	if bonus > 10 {
		bonus = 10
	}
	return clampScore(score + bonus)
}

// riskAdjustedSubScore maps Sharpe and Sortino from their typical [-1, 3]
// range onto [0, 100] and averages them.
func riskAdjustedSubScore(sharpe, sortino float64) float64 {
	sharpeScore := clampScore((sharpe + 1) / 4 * 100)
	sortinoScore := clampScore((sortino + 1) / 4 * 100)
	return (sharpeScore + sortinoScore) / 2
}

// performanceSubScore maps total return from [-50%, +50%] onto [0, 100] and
// adds up to 20 bonus points for outperforming the benchmarks.
func performanceSubScore(totalReturn float64, benchmarks map[string]models.BenchmarkComparison) float64 {
	score := clampScore((totalReturn + 0.5) * 100)

	if len(benchmarks) > 0 {
		sum := 0.0
		for _, b := range benchmarks {
			sum += b.Outperformance
		}
		avg := sum / float64(len(benchmarks))
		if avg > 0 {
			bonus := avg * 100
			if bonus > 20 {
				bonus = 20
			}
			score += bonus
		}
	}
	return clampScore(score)
}

// riskSubScore averages three penalty mappings: drawdown (0 to -50%), VaR
// (0 to -10%), and volatility (0 to 50%).
func riskSubScore(maxDrawdown, valueAtRisk, volatility float64) float64 {
	drawdownScore := clampScore((1 - abs(maxDrawdown)*2) * 100)
	varScore := clampScore((1 - abs(valueAtRisk)*10) * 100)
	volatilityScore := clampScore((1 - volatility*2) * 100)
	return (drawdownScore + varScore + volatilityScore) / 3
}

func healthSuggestions(diversification, riskAdjusted, concentration, performance, risk float64) []string {
	var out []string
	if diversification < 60 {
		out = append(out, "Consider diversifying across more sectors to reduce concentration risk")
	}
	if riskAdjusted < 50 {
		out = append(out, "Improve risk-adjusted returns by optimizing portfolio allocation")
	}
	if concentration < 50 {
		out = append(out, "Reduce portfolio concentration by spreading investments across more holdings")
	}
	if performance < 50 {
		out = append(out, "Portfolio underperforming - consider reviewing holdings and strategy")
	}
	if risk < 50 {
		out = append(out, "High risk detected - consider reducing volatility and drawdown exposure")
	}
	if len(out) == 0 {
		out = append(out, "Portfolio health is good - maintain current strategy")
	}
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
