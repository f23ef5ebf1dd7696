package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert types
const (
	AlertPrice          = "PRICE"
	AlertRebalancing    = "REBALANCING"
	AlertRiskMetric     = "RISK_METRIC"
	AlertPortfolioValue = "PORTFOLIO_VALUE"
)

// Alert conditions
const (
	ConditionAbove  = "ABOVE"
	ConditionBelow  = "BELOW"
	ConditionEquals = "EQUALS"
)

// Risk metrics an alert can watch
const (
	RiskMetricVaR        = "VAR"
	RiskMetricDrawdown   = "DRAWDOWN"
	RiskMetricVolatility = "VOLATILITY"
)

// Alert is a user-defined threshold watch on a portfolio: a symbol price, the
// total portfolio value, a risk metric, or the concentration index for
// rebalancing. Once triggered an alert stays triggered until it is disabled.
type Alert struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	PortfolioID primitive.ObjectID `bson:"portfolio_id" json:"portfolio_id"`
	AlertType   string             `bson:"alert_type" json:"alert_type"`
	Symbol      string             `bson:"symbol,omitempty" json:"symbol,omitempty"`
	Threshold   float64            `bson:"threshold" json:"threshold"`
	Condition   string             `bson:"condition" json:"condition"`
	RiskMetric  string             `bson:"risk_metric,omitempty" json:"risk_metric,omitempty"`
	Enabled     bool               `bson:"enabled" json:"enabled"`
	Notes       string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Triggered   bool               `bson:"triggered" json:"triggered"`
	TriggeredAt *time.Time         `bson:"triggered_at,omitempty" json:"triggered_at,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	LastChecked *time.Time         `bson:"last_checked,omitempty" json:"last_checked,omitempty"`
}
