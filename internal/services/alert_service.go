package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
)

// ErrInvalidAlert is returned for a malformed alert definition.
var ErrInvalidAlert = errors.New("invalid alert")

// Match tolerances for EQUALS conditions: prices to the cent, portfolio
// values to the dollar, risk metric fractions to a tenth of a percent.
const (
	priceEqualsTolerance  = 0.01
	valueEqualsTolerance  = 1.0
	metricEqualsTolerance = 0.001
)

var validAlertTypes = map[string]bool{
	models.AlertPrice:          true,
	models.AlertRebalancing:    true,
	models.AlertRiskMetric:     true,
	models.AlertPortfolioValue: true,
}

var validConditions = map[string]bool{
	models.ConditionAbove:  true,
	models.ConditionBelow:  true,
	models.ConditionEquals: true,
}

// AnalyzerInterface is the slice of AnalyticsService the alert checker needs.
type AnalyzerInterface interface {
	Analyze(ctx context.Context, ownerID, id, period string) (*models.AnalysisResult, error)
}

// CreateAlertRequest is the payload for defining an alert. Enabled defaults
// to true when omitted.
type CreateAlertRequest struct {
	PortfolioID string  `json:"portfolio_id" binding:"required"`
	AlertType   string  `json:"alert_type" binding:"required"`
	Symbol      string  `json:"symbol"`
	Threshold   float64 `json:"threshold"`
	Condition   string  `json:"condition" binding:"required"`
	RiskMetric  string  `json:"risk_metric"`
	Enabled     *bool   `json:"enabled"`
	Notes       string  `json:"notes"`
}

// UpdateAlertRequest is the payload for editing an alert. Nil fields are left
// unchanged; disabling an alert resets its triggered state.
type UpdateAlertRequest struct {
	Threshold *float64 `json:"threshold"`
	Condition *string  `json:"condition"`
	Enabled   *bool    `json:"enabled"`
	Notes     *string  `json:"notes"`
}

// ActiveAlert is a triggered alert together with its portfolio's name.
type ActiveAlert struct {
	models.Alert
	PortfolioName string `json:"portfolio_name"`
}

// AlertCheckSummary reports one evaluation pass over a portfolio's alerts.
type AlertCheckSummary struct {
	Checked        int            `json:"checked"`
	Triggered      []models.Alert `json:"triggered"`
	TriggeredCount int            `json:"triggered_count"`
}

// AlertService owns the alert lifecycle and on-demand evaluation against
// current quotes and the analytics pipeline.
type AlertService struct {
	alertRepo     repositories.AlertRepository
	portfolioRepo repositories.PortfolioRepository
	market        MarketClientInterface
	analyzer      AnalyzerInterface
	logger        *logrus.Logger
}

func NewAlertService(
	alertRepo repositories.AlertRepository,
	portfolioRepo repositories.PortfolioRepository,
	market MarketClientInterface,
	analyzer AnalyzerInterface,
	logger *logrus.Logger,
) *AlertService {
	return &AlertService{
		alertRepo:     alertRepo,
		portfolioRepo: portfolioRepo,
		market:        market,
		analyzer:      analyzer,
		logger:        logger,
	}
}

// Create validates and stores a new alert on an owned portfolio.
func (s *AlertService) Create(ctx context.Context, ownerID string, req CreateAlertRequest) (*models.Alert, error) {
	portfolio, err := loadOwnedPortfolio(ctx, s.portfolioRepo, ownerID, req.PortfolioID)
	if err != nil {
		return nil, err
	}

	if !validAlertTypes[req.AlertType] {
		return nil, fmt.Errorf("%w: unknown alert type %q", ErrInvalidAlert, req.AlertType)
	}
	if !validConditions[req.Condition] {
		return nil, fmt.Errorf("%w: condition must be ABOVE, BELOW or EQUALS", ErrInvalidAlert)
	}
	if req.AlertType == models.AlertPrice && req.Symbol == "" {
		return nil, fmt.Errorf("%w: price alerts require a symbol", ErrInvalidAlert)
	}
	if req.AlertType == models.AlertRiskMetric && req.RiskMetric == "" {
		return nil, fmt.Errorf("%w: risk metric alerts require a metric", ErrInvalidAlert)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	alert := &models.Alert{
		PortfolioID: portfolio.ID,
		AlertType:   req.AlertType,
		Symbol:      req.Symbol,
		Threshold:   req.Threshold,
		Condition:   req.Condition,
		RiskMetric:  req.RiskMetric,
		Enabled:     enabled,
		Notes:       req.Notes,
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id":     alert.ID.Hex(),
		"portfolio_id": portfolio.ID.Hex(),
		"alert_type":   alert.AlertType,
	}).Info("Alert created")

	return alert, nil
}

// ListByPortfolio returns a portfolio's alerts, newest first.
func (s *AlertService) ListByPortfolio(ctx context.Context, ownerID, portfolioID string, enabledOnly bool) ([]models.Alert, error) {
	portfolio, err := loadOwnedPortfolio(ctx, s.portfolioRepo, ownerID, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.alertRepo.ListByPortfolio(ctx, portfolio.ID, enabledOnly)
}

// ActiveAlerts returns the user's triggered and enabled alerts across all
// their portfolios, most recently triggered first.
func (s *AlertService) ActiveAlerts(ctx context.Context, ownerID string) ([]ActiveAlert, error) {
	portfolios, err := s.portfolioRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	names := make(map[primitive.ObjectID]string, len(portfolios))
	ids := make([]primitive.ObjectID, 0, len(portfolios))
	for _, p := range portfolios {
		names[p.ID] = p.Name
		ids = append(ids, p.ID)
	}

	alerts, err := s.alertRepo.ListTriggered(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggered alerts: %w", err)
	}

	active := make([]ActiveAlert, 0, len(alerts))
	for _, alert := range alerts {
		active = append(active, ActiveAlert{Alert: alert, PortfolioName: names[alert.PortfolioID]})
	}
	return active, nil
}

// Update edits an alert's threshold, condition, enabled flag or notes.
func (s *AlertService) Update(ctx context.Context, ownerID, alertID string, req UpdateAlertRequest) (*models.Alert, error) {
	alert, err := s.loadOwnedAlert(ctx, ownerID, alertID)
	if err != nil {
		return nil, err
	}

	if req.Threshold != nil {
		alert.Threshold = *req.Threshold
	}
	if req.Condition != nil {
		if !validConditions[*req.Condition] {
			return nil, fmt.Errorf("%w: condition must be ABOVE, BELOW or EQUALS", ErrInvalidAlert)
		}
		alert.Condition = *req.Condition
	}
	if req.Enabled != nil {
		alert.Enabled = *req.Enabled
		if !alert.Enabled {
			alert.Triggered = false
			alert.TriggeredAt = nil
		}
	}
	if req.Notes != nil {
		alert.Notes = *req.Notes
	}

	if err := s.alertRepo.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return alert, nil
}

// Delete removes an alert after verifying ownership.
func (s *AlertService) Delete(ctx context.Context, ownerID, alertID string) error {
	alert, err := s.loadOwnedAlert(ctx, ownerID, alertID)
	if err != nil {
		return err
	}
	return s.alertRepo.Delete(ctx, alert.ID)
}

// Check evaluates a portfolio's enabled alerts against current quotes and a
// fresh analysis. Alerts that cross their threshold for the first time are
// marked triggered; the rest only record the check time.
func (s *AlertService) Check(ctx context.Context, ownerID, portfolioID string) (*AlertCheckSummary, error) {
	portfolio, err := loadOwnedPortfolio(ctx, s.portfolioRepo, ownerID, portfolioID)
	if err != nil {
		return nil, err
	}

	alerts, err := s.alertRepo.ListByPortfolio(ctx, portfolio.ID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	summary := &AlertCheckSummary{Checked: len(alerts), Triggered: []models.Alert{}}
	if len(alerts) == 0 {
		return summary, nil
	}

	// Value, risk metric and rebalancing alerts need the analysis; price
	// alerts only need quotes, so an analysis failure is not fatal.
	result, err := s.analyzer.Analyze(ctx, ownerID, portfolioID, "")
	if err != nil {
		s.logger.WithError(err).WithField("portfolio_id", portfolioID).Warn("Analysis unavailable for alert check")
		result = nil
	}

	now := time.Now().UTC()
	for i := range alerts {
		alert := &alerts[i]

		fired, err := s.evaluate(ctx, alert, result)
		if err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID.Hex()).Warn("Failed to evaluate alert")
			continue
		}

		if fired && !alert.Triggered {
			if err := s.alertRepo.MarkTriggered(ctx, alert.ID, now); err != nil {
				s.logger.WithError(err).WithField("alert_id", alert.ID.Hex()).Warn("Failed to mark alert triggered")
				continue
			}
			alert.Triggered = true
			alert.TriggeredAt = &now
			alert.LastChecked = &now
			summary.Triggered = append(summary.Triggered, *alert)
			continue
		}

		if err := s.alertRepo.MarkChecked(ctx, alert.ID, now); err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID.Hex()).Warn("Failed to record alert check")
		}
	}

	summary.TriggeredCount = len(summary.Triggered)
	return summary, nil
}

func (s *AlertService) evaluate(ctx context.Context, alert *models.Alert, result *models.AnalysisResult) (bool, error) {
	switch alert.AlertType {
	case models.AlertPrice:
		info, err := s.market.GetQuote(ctx, alert.Symbol)
		if err != nil {
			return false, err
		}
		if info == nil {
			return false, fmt.Errorf("%w: %s", ErrSymbolNotFound, alert.Symbol)
		}
		return matchCondition(info.Price.InexactFloat64(), alert.Threshold, alert.Condition, priceEqualsTolerance), nil

	case models.AlertPortfolioValue:
		if result == nil {
			return false, nil
		}
		return matchCondition(result.TotalValue.InexactFloat64(), alert.Threshold, alert.Condition, valueEqualsTolerance), nil

	case models.AlertRiskMetric:
		if result == nil {
			return false, nil
		}
		value, ok := riskMetricValue(result.Metrics, alert.RiskMetric)
		if !ok {
			return false, fmt.Errorf("%w: unknown risk metric %q", ErrInvalidAlert, alert.RiskMetric)
		}
		return matchCondition(value, alert.Threshold, alert.Condition, metricEqualsTolerance), nil

	case models.AlertRebalancing:
		// fires when the concentration index drifts past the threshold
		if result == nil {
			return false, nil
		}
		return result.Metrics.Concentration > alert.Threshold, nil
	}

	return false, fmt.Errorf("%w: unknown alert type %q", ErrInvalidAlert, alert.AlertType)
}

func riskMetricValue(m models.MetricSet, metric string) (float64, bool) {
	switch metric {
	case models.RiskMetricVaR:
		return math.Abs(m.ValueAtRisk95), true
	case models.RiskMetricDrawdown:
		return math.Abs(m.MaxDrawdown), true
	case models.RiskMetricVolatility:
		return m.Volatility, true
	}
	return 0, false
}

func matchCondition(value, threshold float64, condition string, tolerance float64) bool {
	switch condition {
	case models.ConditionAbove:
		return value > threshold
	case models.ConditionBelow:
		return value < threshold
	case models.ConditionEquals:
		return math.Abs(value-threshold) < tolerance
	}
	return false
}

func (s *AlertService) loadOwnedAlert(ctx context.Context, ownerID, alertID string) (*models.Alert, error) {
	id, err := primitive.ObjectIDFromHex(alertID)
	if err != nil {
		return nil, ErrInvalidID
	}

	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	portfolio, err := s.portfolioRepo.GetByID(ctx, alert.PortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.OwnerID != ownerID {
		return nil, ErrAccessDenied
	}
	return alert, nil
}
