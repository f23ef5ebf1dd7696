package views

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/analytics"
	"portfolio-analytics-api/internal/models"
)

// ErrNoTargetAllocations is returned when a rebalancing plan is requested for
// a portfolio without configured targets.
var ErrNoTargetAllocations = errors.New("no target allocations set for portfolio")

// tradeThreshold suppresses suggestions for fractional dust trades.
const tradeThreshold = 0.01

// RebalanceSuggestion is one per-symbol trade proposal.
type RebalanceSuggestion struct {
	Symbol         string  `json:"symbol"`
	Action         string  `json:"action"` // BUY, SELL or HOLD
	CurrentShares  float64 `json:"current_shares"`
	TargetShares   float64 `json:"target_shares"`
	SharesToTrade  float64 `json:"shares_to_trade"`
	CurrentValue   float64 `json:"current_value"`
	TargetValue    float64 `json:"target_value"`
	CurrentPercent float64 `json:"current_percent"`
	TargetPercent  float64 `json:"target_percent"`
	Drift          float64 `json:"drift"`
}

// RebalancePlan is the full set of suggestions plus a drift summary.
type RebalancePlan struct {
	PortfolioID      string                `json:"portfolio_id"`
	TotalValue       float64               `json:"total_portfolio_value"`
	Tolerance        float64               `json:"tolerance"`
	Suggestions      []RebalanceSuggestion `json:"suggestions"`
	TotalDrift       float64               `json:"total_drift"`
	NeedsRebalancing bool                  `json:"needs_rebalancing"`
	TradesSuggested  int                   `json:"trades_suggested"`
}

// Rebalancer builds drift-based trade plans. It needs market access only to
// price targets that have no current holding.
type Rebalancer struct {
	market analytics.MarketData
	logger *logrus.Logger
}

func NewRebalancer(market analytics.MarketData, logger *logrus.Logger) *Rebalancer {
	return &Rebalancer{market: market, logger: logger}
}

// Plan computes per-holding drift against the portfolio's target allocations
// and proposes trades for anything outside the tolerance band. Holdings with
// no target are proposed for liquidation; targets with no holding become new
// buys. With considerTolerance false every drifted position gets a trade.
func (r *Rebalancer) Plan(ctx context.Context, portfolio *models.Portfolio, result *models.AnalysisResult, considerTolerance bool) (*RebalancePlan, error) {
	if len(portfolio.TargetAllocations) == 0 {
		return nil, ErrNoTargetAllocations
	}
	if result.Message != "" || len(result.Holdings) == 0 {
		return nil, analytics.ErrNoHoldings
	}

	totalValue := result.TotalValue.InexactFloat64()
	if totalValue == 0 {
		return nil, analytics.ErrZeroPortfolioValue
	}

	tolerance := planTolerance(portfolio.TargetAllocations)

	plan := &RebalancePlan{
		PortfolioID: result.PortfolioID,
		TotalValue:  totalValue,
		Tolerance:   tolerance,
	}

	held := make(map[string]bool, len(result.Holdings))
	for _, h := range result.Holdings {
		held[h.Symbol] = true
		plan.Suggestions = append(plan.Suggestions, r.holdingSuggestion(h, portfolio.TargetAllocations, totalValue, tolerance, considerTolerance))
	}

	// targets with no position become new buys
	for symbol, target := range portfolio.TargetAllocations {
		if held[symbol] {
			continue
		}
		if s, ok := r.newBuySuggestion(ctx, symbol, target.TargetPercent, totalValue); ok {
			plan.Suggestions = append(plan.Suggestions, s)
		}
	}

	for _, s := range plan.Suggestions {
		plan.TotalDrift += math.Abs(s.Drift)
		if s.Action != "HOLD" {
			plan.TradesSuggested++
		}
	}
	plan.TotalDrift = round2(plan.TotalDrift)
	plan.NeedsRebalancing = plan.TradesSuggested > 0
	return plan, nil
}

// planTolerance is the strictest tolerance across the configured targets, so
// the plan band does not depend on map iteration order. Targets without a
// tolerance fall back to 5%.
func planTolerance(targets map[string]models.TargetAllocation) float64 {
	tolerance := 5.0
	first := true
	for _, t := range targets {
		if t.Tolerance <= 0 {
			continue
		}
		if first || t.Tolerance < tolerance {
			tolerance = t.Tolerance
			first = false
		}
	}
	return tolerance
}

func (r *Rebalancer) holdingSuggestion(h models.HoldingAnalytics, targets map[string]models.TargetAllocation, totalValue, tolerance float64, considerTolerance bool) RebalanceSuggestion {
	currentValue := h.CurrentValue.InexactFloat64()
	currentShares := h.Shares.InexactFloat64()
	currentPercent := currentValue / totalValue * 100

	target, hasTarget := targets[h.Symbol]
	if !hasTarget {
		// no target: full liquidation proposal
		return RebalanceSuggestion{
			Symbol:         h.Symbol,
			Action:         "SELL",
			CurrentShares:  currentShares,
			SharesToTrade:  -currentShares,
			CurrentValue:   currentValue,
			CurrentPercent: round2(currentPercent),
			Drift:          round2(currentPercent),
		}
	}

	drift := currentPercent - target.TargetPercent
	if considerTolerance && math.Abs(drift) <= tolerance {
		return RebalanceSuggestion{
			Symbol:         h.Symbol,
			Action:         "HOLD",
			CurrentShares:  currentShares,
			TargetShares:   currentShares,
			CurrentValue:   currentValue,
			TargetValue:    currentValue,
			CurrentPercent: round2(currentPercent),
			TargetPercent:  target.TargetPercent,
			Drift:          round2(drift),
		}
	}

	targetValue := totalValue * target.TargetPercent / 100
	currentPrice := h.CurrentPrice.InexactFloat64()

	suggestion := RebalanceSuggestion{
		Symbol:         h.Symbol,
		Action:         "HOLD",
		CurrentShares:  currentShares,
		CurrentValue:   currentValue,
		TargetValue:    round2(targetValue),
		CurrentPercent: round2(currentPercent),
		TargetPercent:  target.TargetPercent,
		Drift:          round2(drift),
	}
	if currentPrice == 0 {
		return suggestion
	}

	targetShares := targetValue / currentPrice
	sharesToTrade := targetShares - currentShares
	suggestion.TargetShares = round2(targetShares)
	suggestion.SharesToTrade = round2(sharesToTrade)
	if sharesToTrade > tradeThreshold {
		suggestion.Action = "BUY"
	} else if sharesToTrade < -tradeThreshold {
		suggestion.Action = "SELL"
	}
	return suggestion
}

// newBuySuggestion prices a targeted symbol that has no position yet. The
// symbol is skipped when no quote is available.
func (r *Rebalancer) newBuySuggestion(ctx context.Context, symbol string, targetPercent, totalValue float64) (RebalanceSuggestion, bool) {
	info, err := r.market.GetQuote(ctx, symbol)
	if err != nil || info == nil || info.Price.IsZero() {
		r.logger.WithField("symbol", symbol).Warn("Cannot price target symbol, skipping new-buy suggestion")
		return RebalanceSuggestion{}, false
	}

	targetValue := totalValue * targetPercent / 100
	targetShares := targetValue / info.Price.InexactFloat64()

	return RebalanceSuggestion{
		Symbol:        symbol,
		Action:        "BUY",
		TargetShares:  round2(targetShares),
		SharesToTrade: round2(targetShares),
		TargetValue:   round2(targetValue),
		TargetPercent: targetPercent,
		Drift:         round2(-targetPercent),
	}, true
}
