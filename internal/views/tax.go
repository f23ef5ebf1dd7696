package views

import (
	"fmt"
	"math"
	"sort"
	"time"

	"portfolio-analytics-api/internal/models"
)

const (
	washSaleWindowDays = 30
	longTermDays       = 365
)

// TaxLossOpportunity is one holding sitting on a harvestable unrealized loss.
type TaxLossOpportunity struct {
	Symbol              string  `json:"symbol"`
	CurrentValue        float64 `json:"current_value"`
	PurchaseValue       float64 `json:"purchase_value"`
	LossAmount          float64 `json:"loss_amount"`
	LossPercent         float64 `json:"loss_percent"`
	PotentialTaxSavings float64 `json:"potential_tax_savings"`
	IsLongTerm          bool    `json:"is_long_term"`
	WashSaleWarning     bool    `json:"wash_sale_warning"`
	DaysHeld            int     `json:"days_held"`
}

// TaxRecommendation is a prioritized action for the user.
type TaxRecommendation struct {
	Priority         string  `json:"priority"` // high, medium or low
	Category         string  `json:"category"`
	Action           string  `json:"action"`
	PotentialSavings float64 `json:"potential_savings"`
	Rationale        string  `json:"rationale"`
}

// TaxReport is the tax-loss-harvesting analysis of a portfolio.
type TaxReport struct {
	PortfolioID           string               `json:"portfolio_id"`
	TaxRate               float64              `json:"tax_rate"`
	TotalUnrealizedGains  float64              `json:"total_unrealized_gains"`
	TotalUnrealizedLosses float64              `json:"total_unrealized_losses"`
	NetUnrealized         float64              `json:"net_unrealized"`
	Opportunities         []TaxLossOpportunity `json:"tax_loss_opportunities"`
	TotalPotentialSavings float64              `json:"total_potential_savings"`
	Recommendations       []TaxRecommendation  `json:"recommendations"`
	LongTermHoldings      int                  `json:"long_term_holdings"`
	ShortTermHoldings     int                  `json:"short_term_holdings"`
}

// ComputeTaxReport scans the holdings for unrealized losses, estimates the
// tax saved by harvesting each at the given rate, flags wash-sale risk from
// the transaction log, and classifies positions by holding period.
func ComputeTaxReport(result *models.AnalysisResult, transactions []models.Transaction, taxRate float64, now time.Time) (*TaxReport, error) {
	if result.Message != "" || len(result.Holdings) == 0 {
		return nil, fmt.Errorf("portfolio has no holdings to analyze")
	}

	report := &TaxReport{
		PortfolioID: result.PortfolioID,
		TaxRate:     taxRate,
	}

	recentBySymbol := recentTransactionSymbols(transactions, now)

	for _, h := range result.Holdings {
		gainLoss := h.GainLoss.InexactFloat64()
		daysHeld := int(now.Sub(h.PurchaseDate).Hours() / 24)
		if daysHeld >= longTermDays {
			report.LongTermHoldings++
		} else {
			report.ShortTermHoldings++
		}

		if gainLoss > 0 {
			report.TotalUnrealizedGains += gainLoss
			continue
		}
		if gainLoss == 0 {
			continue
		}

		loss := math.Abs(gainLoss)
		report.TotalUnrealizedLosses += loss
		savings := loss * taxRate
		report.TotalPotentialSavings += savings

		purchaseValue := h.PurchaseValue.InexactFloat64()
		lossPercent := 0.0
		if purchaseValue > 0 {
			lossPercent = loss / purchaseValue * 100
		}

		report.Opportunities = append(report.Opportunities, TaxLossOpportunity{
			Symbol:              h.Symbol,
			CurrentValue:        h.CurrentValue.InexactFloat64(),
			PurchaseValue:       purchaseValue,
			LossAmount:          round2(loss),
			LossPercent:         round2(lossPercent),
			PotentialTaxSavings: round2(savings),
			IsLongTerm:          daysHeld >= longTermDays,
			WashSaleWarning:     recentBySymbol[h.Symbol],
			DaysHeld:            daysHeld,
		})
	}

	sort.Slice(report.Opportunities, func(i, j int) bool {
		return report.Opportunities[i].PotentialTaxSavings > report.Opportunities[j].PotentialTaxSavings
	})

	report.NetUnrealized = round2(report.TotalUnrealizedGains + report.TotalUnrealizedLosses)
	report.TotalUnrealizedGains = round2(report.TotalUnrealizedGains)
	report.TotalUnrealizedLosses = round2(report.TotalUnrealizedLosses)
	report.TotalPotentialSavings = round2(report.TotalPotentialSavings)
	report.Recommendations = taxRecommendations(report, taxRate)
	return report, nil
}

// recentTransactionSymbols flags symbols with any transaction inside the
// wash-sale window around now.
func recentTransactionSymbols(transactions []models.Transaction, now time.Time) map[string]bool {
	from := now.AddDate(0, 0, -washSaleWindowDays)
	to := now.AddDate(0, 0, washSaleWindowDays)
	out := make(map[string]bool)
	for _, tx := range transactions {
		if !tx.Timestamp.Before(from) && !tx.Timestamp.After(to) {
			out[tx.Symbol] = true
		}
	}
	return out
}

func taxRecommendations(report *TaxReport, taxRate float64) []TaxRecommendation {
	var out []TaxRecommendation

	if len(report.Opportunities) > 0 {
		out = append(out, TaxRecommendation{
			Priority:         "high",
			Category:         "tax_loss_harvesting",
			Action:           fmt.Sprintf("Consider harvesting losses from %d holding(s) to offset gains", len(report.Opportunities)),
			PotentialSavings: report.TotalPotentialSavings,
			Rationale:        fmt.Sprintf("Tax-loss harvesting could save up to $%.2f in taxes", report.TotalPotentialSavings),
		})
	}

	if report.TotalUnrealizedGains > 0 && report.TotalUnrealizedLosses > 0 {
		offset := math.Min(report.TotalUnrealizedGains, report.TotalUnrealizedLosses)
		out = append(out, TaxRecommendation{
			Priority:         "medium",
			Category:         "gain_loss_offset",
			Action:           fmt.Sprintf("Offset $%.2f in gains with losses", offset),
			PotentialSavings: round2(offset * taxRate),
			Rationale:        "Offsetting gains with losses can reduce your tax liability",
		})
	}

	if report.ShortTermHoldings > 0 {
		out = append(out, TaxRecommendation{
			Priority:  "low",
			Category:  "holding_period",
			Action:    fmt.Sprintf("Consider holding %d position(s) for 1+ year for long-term capital gains rates", report.ShortTermHoldings),
			Rationale: "Long-term capital gains are typically taxed at lower rates than short-term gains",
		})
	}

	if len(out) == 0 {
		out = append(out, TaxRecommendation{
			Priority:  "low",
			Category:  "general",
			Action:    "No immediate tax optimization opportunities identified",
			Rationale: "Portfolio shows no significant tax-loss harvesting opportunities at this time",
		})
	}
	return out
}
