// Package narrative turns an analysis result into a prose risk report via a
// language model. The analytics pipeline works fine without it: when no API
// key is configured or the model call fails, a template fallback is returned.
package narrative

import (
	"context"
	"fmt"
	"strings"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
)

const systemPrompt = "You are a professional financial risk analyst with expertise in portfolio management and risk assessment."

// Generator produces natural-language risk reports.
type Generator struct {
	client  *oa.Client
	model   string
	enabled bool
	logger  *logrus.Logger
}

func NewGenerator(cfg config.NarrativeConfig, logger *logrus.Logger) *Generator {
	g := &Generator{model: cfg.Model, logger: logger}
	if !cfg.Enabled || cfg.APIKey == "" {
		logger.Warn("Narrative generation disabled: no API key configured, falling back to template reports")
		return g
	}
	client := oa.NewClient(option.WithAPIKey(cfg.APIKey))
	g.client = &client
	g.enabled = true
	return g
}

// RiskReport generates a prose risk assessment of the analysis result. Any
// model failure degrades to the template report rather than erroring out.
func (g *Generator) RiskReport(ctx context.Context, result *models.AnalysisResult) string {
	if !g.enabled {
		return g.fallbackReport(result)
	}

	resp, err := g.client.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: g.model,
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(systemPrompt),
			oa.UserMessage(g.buildPrompt(result)),
		},
		MaxTokens:   oa.Int(800),
		Temperature: oa.Float(0.7),
	})
	if err != nil {
		g.logger.WithError(err).Error("Risk report generation failed, using template fallback")
		return g.fallbackReport(result)
	}
	if len(resp.Choices) == 0 {
		g.logger.Error("Risk report generation returned no choices, using template fallback")
		return g.fallbackReport(result)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func (g *Generator) buildPrompt(result *models.AnalysisResult) string {
	var b strings.Builder
	m := result.Metrics

	fmt.Fprintf(&b, "You are a professional portfolio risk analyst. Analyze the following portfolio and provide a comprehensive, easy-to-understand risk assessment report.\n\n")
	fmt.Fprintf(&b, "Portfolio Name: %s\n\n", result.PortfolioName)
	fmt.Fprintf(&b, "Portfolio Metrics:\n")
	fmt.Fprintf(&b, "- Annualized Return: %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(&b, "- Volatility (Risk): %.2f%%\n", m.Volatility*100)
	fmt.Fprintf(&b, "- Sharpe Ratio: %.2f\n", m.SharpeRatio)
	fmt.Fprintf(&b, "- Max Drawdown: %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(&b, "- Value at Risk (95%%): %.2f%%\n", m.ValueAtRisk95*100)
	fmt.Fprintf(&b, "- Current Portfolio Value: $%s\n", result.TotalValue.StringFixed(2))
	fmt.Fprintf(&b, "- Total Return: %.2f%%\n\n", m.TotalReturn*100)

	fmt.Fprintf(&b, "Holdings (%d positions):\n", len(result.Holdings))
	for _, h := range result.Holdings {
		fmt.Fprintf(&b, "- %s: %s shares @ $%s (gain/loss $%s)\n",
			h.Symbol, h.Shares.String(), h.PurchasePrice.StringFixed(2), h.GainLoss.StringFixed(2))
	}

	b.WriteString("\nSector Allocation:\n")
	if len(result.SectorBreakdown) == 0 {
		b.WriteString("No sector data available\n")
	}
	for sector, alloc := range result.SectorBreakdown {
		fmt.Fprintf(&b, "- %s: %.1f%% of portfolio\n", sector, alloc.Weight)
	}

	b.WriteString(`
Please provide a comprehensive risk analysis report that includes:
1. Overall risk assessment (Low/Medium/High)
2. Key strengths of the portfolio
3. Main risk factors and concerns
4. Diversification analysis
5. Specific recommendations for risk management
6. Outlook and suggestions

Write in a clear, professional but accessible tone. Target audience: everyday investors who want to understand their portfolio risk.

Keep the report concise (300-400 words) but comprehensive.`)
	return b.String()
}

// fallbackReport summarizes the numbers without a model.
func (g *Generator) fallbackReport(result *models.AnalysisResult) string {
	m := result.Metrics

	risk := "Low"
	switch {
	case m.Volatility > 0.025 || m.MaxDrawdown < -0.30:
		risk = "High"
	case m.Volatility > 0.012 || m.MaxDrawdown < -0.15:
		risk = "Medium"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio Risk Analysis Report: %s\n\n", result.PortfolioName)
	fmt.Fprintf(&b, "Overall Risk Level: %s\n\n", risk)
	fmt.Fprintf(&b, "Current value: $%s across %d holdings.\n", result.TotalValue.StringFixed(2), len(result.Holdings))
	fmt.Fprintf(&b, "Annualized return %.2f%% with volatility of %.2f%% (daily) and a maximum drawdown of %.2f%%.\n",
		m.AnnualizedReturn*100, m.Volatility*100, m.MaxDrawdown*100)
	fmt.Fprintf(&b, "Sharpe ratio: %.2f. Value at Risk (95%%): %.2f%% per day.\n\n", m.SharpeRatio, m.ValueAtRisk95*100)

	if m.Concentration > 0.5 {
		b.WriteString("The portfolio is heavily concentrated; consider spreading value across more positions.\n")
	}
	if len(result.SectorBreakdown) == 1 {
		b.WriteString("All holdings sit in a single sector, which amplifies sector-specific risk.\n")
	}
	b.WriteString("\nThis summary was generated without AI assistance. Configure an API key for a full narrative report.")
	return b.String()
}
