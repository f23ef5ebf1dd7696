package views

import (
	"errors"
	"fmt"
	"time"

	"portfolio-analytics-api/internal/models"
)

// Scenario type identifiers.
const (
	ScenarioMarketCrash       = "MARKET_CRASH"
	ScenarioRecession         = "RECESSION"
	ScenarioSectorRotation    = "SECTOR_ROTATION"
	ScenarioInterestRateShock = "INTEREST_RATE_SHOCK"
	ScenarioCustom            = "CUSTOM"
)

var ErrUnknownScenario = errors.New("unknown scenario type")

// scenarioDefinition describes a predefined shock: either a flat adjustment
// applied to every holding or a per-sector table. Adjustments are fractions.
type scenarioDefinition struct {
	Name              string
	Description       string
	FlatAdjustment    float64
	SectorAdjustments map[string]float64
	DefaultAdjustment float64 // applied to sectors missing from the table
}

var predefinedScenarios = map[string]scenarioDefinition{
	ScenarioMarketCrash: {
		Name:           "Market Crash (-20%)",
		Description:    "Simulates a broad market decline of 20%",
		FlatAdjustment: -0.20,
	},
	ScenarioRecession: {
		Name:        "Recession Scenario",
		Description: "Simulates economic recession with varied sector impacts",
		SectorAdjustments: map[string]float64{
			"Technology":         -0.25,
			"Financial Services": -0.30,
			"Consumer Cyclical":  -0.35,
			"Healthcare":         -0.10,
			"Consumer Defensive": -0.05,
			"Utilities":          -0.05,
		},
		DefaultAdjustment: -0.20,
	},
	ScenarioSectorRotation: {
		Name:        "Sector Rotation",
		Description: "Simulates rotation from growth to value sectors",
		SectorAdjustments: map[string]float64{
			"Technology":         -0.15,
			"Financial Services": 0.10,
			"Energy":             0.15,
			"Utilities":          0.05,
		},
	},
	ScenarioInterestRateShock: {
		Name:        "Interest Rate Shock",
		Description: "Simulates sudden interest rate increase",
		SectorAdjustments: map[string]float64{
			"Financial Services": 0.05,
			"Real Estate":        -0.20,
			"Utilities":          -0.15,
			"Technology":         -0.10,
		},
	},
}

// defaultMarketCrashPercent applies when a MARKET_CRASH request omits the
// crash size.
const defaultMarketCrashPercent = -20.0

// ScenarioRequest selects a scenario and its parameters.
type ScenarioRequest struct {
	ScenarioType       string             `json:"scenario_type" binding:"required"`
	CustomAdjustments  map[string]float64 `json:"custom_adjustments,omitempty"` // symbol -> percent change
	MarketCrashPercent *float64           `json:"market_crash_percent"`         // for MARKET_CRASH; -20 when omitted
	SectorRotation     map[string]float64 `json:"sector_rotation,omitempty"`    // overrides for SECTOR_ROTATION
}

func (r ScenarioRequest) crashPercent() float64 {
	if r.MarketCrashPercent != nil {
		return *r.MarketCrashPercent
	}
	return defaultMarketCrashPercent
}

// ScenarioHolding shows one holding before and after the shock.
type ScenarioHolding struct {
	Symbol        string  `json:"symbol"`
	Shares        float64 `json:"shares"`
	CurrentPrice  float64 `json:"current_price"`
	ScenarioPrice float64 `json:"scenario_price"`
	CurrentValue  float64 `json:"current_value"`
	ScenarioValue float64 `json:"scenario_value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// ScenarioResult is the simulated portfolio under the shock.
type ScenarioResult struct {
	PortfolioID         string            `json:"portfolio_id"`
	ScenarioType        string            `json:"scenario_type"`
	ScenarioName        string            `json:"scenario_name"`
	ScenarioDescription string            `json:"scenario_description"`
	CurrentValue        float64           `json:"current_value"`
	ScenarioValue       float64           `json:"scenario_value"`
	TotalChange         float64           `json:"total_change"`
	TotalChangePercent  float64           `json:"total_change_percent"`
	Holdings            []ScenarioHolding `json:"holdings"`
	CurrentDrawdown     float64           `json:"current_drawdown"`
	ScenarioDrawdown    float64           `json:"scenario_drawdown"`
	CurrentVolatility   float64           `json:"current_volatility"`
	ScenarioVolatility  float64           `json:"scenario_volatility"`
	Timestamp           time.Time         `json:"timestamp"`
}

// ScenarioInfo describes an available scenario for listing.
type ScenarioInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PredefinedScenarios lists the built-in scenarios plus the custom option.
func PredefinedScenarios() []ScenarioInfo {
	out := make([]ScenarioInfo, 0, len(predefinedScenarios)+1)
	for _, key := range []string{ScenarioMarketCrash, ScenarioRecession, ScenarioSectorRotation, ScenarioInterestRateShock} {
		def := predefinedScenarios[key]
		out = append(out, ScenarioInfo{Type: key, Name: def.Name, Description: def.Description})
	}
	out = append(out, ScenarioInfo{
		Type:        ScenarioCustom,
		Name:        "Custom Scenario",
		Description: "Create your own scenario with custom adjustments per holding",
	})
	return out
}

// SimulateScenario applies a deterministic price shock to every holding and
// reports the hypothetical portfolio. The drawdown and volatility figures are
// heuristic scalings of the current metrics, not re-derived projections.
func SimulateScenario(result *models.AnalysisResult, req ScenarioRequest) (*ScenarioResult, error) {
	if result.Message != "" || len(result.Holdings) == 0 {
		return nil, fmt.Errorf("portfolio has no holdings to simulate")
	}
	currentTotal := result.TotalValue.InexactFloat64()
	if currentTotal == 0 {
		return nil, fmt.Errorf("portfolio has zero value")
	}

	name, description, err := scenarioIdentity(req)
	if err != nil {
		return nil, err
	}

	sim := &ScenarioResult{
		PortfolioID:         result.PortfolioID,
		ScenarioType:        req.ScenarioType,
		ScenarioName:        name,
		ScenarioDescription: description,
		CurrentValue:        round2(currentTotal),
		Timestamp:           time.Now().UTC(),
	}

	scenarioTotal := 0.0
	for _, h := range result.Holdings {
		adjustment := holdingAdjustment(h, req)

		currentPrice := h.CurrentPrice.InexactFloat64()
		currentValue := h.CurrentValue.InexactFloat64()
		shares := h.Shares.InexactFloat64()
		newPrice := currentPrice * (1 + adjustment)
		newValue := shares * newPrice
		scenarioTotal += newValue

		sim.Holdings = append(sim.Holdings, ScenarioHolding{
			Symbol:        h.Symbol,
			Shares:        shares,
			CurrentPrice:  currentPrice,
			ScenarioPrice: round2(newPrice),
			CurrentValue:  currentValue,
			ScenarioValue: round2(newValue),
			Change:        round2(newValue - currentValue),
			ChangePercent: round2(adjustment * 100),
		})
	}

	sim.ScenarioValue = round2(scenarioTotal)
	sim.TotalChange = round2(scenarioTotal - currentTotal)
	changePercent := (scenarioTotal - currentTotal) / currentTotal * 100
	sim.TotalChangePercent = round2(changePercent)

	// heuristic risk estimates under the shock
	sim.CurrentDrawdown = round2(abs(result.Metrics.MaxDrawdown) * 100)
	scenarioDD := 0.0
	if changePercent < 0 {
		scenarioDD = abs(changePercent / 100)
	}
	sim.ScenarioDrawdown = round2(scenarioDD * 100)

	multiplier := 1.2
	if abs(changePercent) > 20 {
		multiplier = 1.5
	}
	sim.CurrentVolatility = round2(result.Metrics.Volatility * 100)
	sim.ScenarioVolatility = round2(result.Metrics.Volatility * multiplier * 100)

	return sim, nil
}

func scenarioIdentity(req ScenarioRequest) (string, string, error) {
	if req.ScenarioType == ScenarioCustom {
		return "Custom Scenario", "User-defined scenario with custom adjustments", nil
	}
	def, ok := predefinedScenarios[req.ScenarioType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownScenario, req.ScenarioType)
	}
	return def.Name, def.Description, nil
}

func holdingAdjustment(h models.HoldingAnalytics, req ScenarioRequest) float64 {
	switch req.ScenarioType {
	case ScenarioMarketCrash:
		return req.crashPercent() / 100
	case ScenarioCustom:
		if pct, ok := req.CustomAdjustments[h.Symbol]; ok {
			return pct / 100
		}
		return 0
	case ScenarioSectorRotation:
		if pct, ok := req.SectorRotation[h.Sector]; ok {
			return pct / 100
		}
	}

	def := predefinedScenarios[req.ScenarioType]
	if adj, ok := def.SectorAdjustments[h.Sector]; ok {
		return adj
	}
	return def.DefaultAdjustment
}
