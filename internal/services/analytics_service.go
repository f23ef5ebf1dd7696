package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/analytics"
	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/middleware"
	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
	"portfolio-analytics-api/internal/series"
	"portfolio-analytics-api/internal/views"
	"portfolio-analytics-api/pkg/cache"
)

var (
	// ErrInvalidPeriod is returned for an unsupported analysis period.
	ErrInvalidPeriod = errors.New("invalid analysis period")

	// ErrInvalidDateRange is returned for a malformed backtest window.
	ErrInvalidDateRange = errors.New("invalid date range")
)

var validPeriods = map[string]bool{
	"1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true,
}

// Interfaces for testing

type EngineInterface interface {
	Analyze(ctx context.Context, portfolio *models.Portfolio, period string) (*models.AnalysisResult, error)
	AnalyzeCorrelation(ctx context.Context, portfolio *models.Portfolio, period string) (*models.CorrelationReport, error)
	Backtest(ctx context.Context, portfolio *models.Portfolio, start, end time.Time) (*models.BacktestResult, error)
}

type RebalancerInterface interface {
	Plan(ctx context.Context, portfolio *models.Portfolio, result *models.AnalysisResult, considerTolerance bool) (*views.RebalancePlan, error)
}

type NarrativeInterface interface {
	RiskReport(ctx context.Context, result *models.AnalysisResult) string
}

// BacktestRequest is the payload for a historical replay of current holdings.
// Either a named period or an explicit date range must be given; the period
// wins when both are present.
type BacktestRequest struct {
	Period    string `json:"period"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

var backtestPeriodYears = map[string]int{
	"1y": 1, "3y": 3, "5y": 5, "10y": 10,
}

// RiskNarrative is a generated plain-language risk report.
type RiskNarrative struct {
	PortfolioID string    `json:"portfolio_id"`
	Report      string    `json:"report"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AnalyticsService orchestrates the analytics engine over stored portfolios:
// cached analysis, health scoring, rebalancing, scenarios, tax reports,
// backtests and correlation.
type AnalyticsService struct {
	portfolioRepo   repositories.PortfolioRepository
	transactionRepo repositories.TransactionRepository
	healthRepo      repositories.HealthScoreRepository
	engine          EngineInterface
	rebalancer      RebalancerInterface
	narrative       NarrativeInterface
	cache           CacheInterface
	analysisTTL     time.Duration
	cfg             config.AnalyticsConfig
	logger          *logrus.Logger
}

func NewAnalyticsService(
	portfolioRepo repositories.PortfolioRepository,
	transactionRepo repositories.TransactionRepository,
	healthRepo repositories.HealthScoreRepository,
	engine EngineInterface,
	rebalancer RebalancerInterface,
	narrative NarrativeInterface,
	cacheClient CacheInterface,
	analysisTTL time.Duration,
	cfg config.AnalyticsConfig,
	logger *logrus.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		portfolioRepo:   portfolioRepo,
		transactionRepo: transactionRepo,
		healthRepo:      healthRepo,
		engine:          engine,
		rebalancer:      rebalancer,
		narrative:       narrative,
		cache:           cacheClient,
		analysisTTL:     analysisTTL,
		cfg:             cfg,
		logger:          logger,
	}
}

// Analyze runs the full analysis pipeline for a portfolio, serving from the
// cache when a fresh result for the same period exists.
func (as *AnalyticsService) Analyze(ctx context.Context, ownerID, id, period string) (*models.AnalysisResult, error) {
	period, err := as.normalizePeriod(period)
	if err != nil {
		return nil, err
	}

	portfolio, err := loadOwnedPortfolio(ctx, as.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	key := cache.AnalysisKey(id, period)
	if as.cache != nil {
		var cached models.AnalysisResult
		if err := as.cache.Get(ctx, key, &cached); err == nil {
			middleware.ObserveAnalysis("cached")
			return &cached, nil
		}
	}

	result, err := as.engine.Analyze(ctx, portfolio, period)
	if err != nil {
		middleware.ObserveAnalysis("error")
		return nil, err
	}

	if result.Message != "" {
		middleware.ObserveAnalysis("empty")
	} else {
		middleware.ObserveAnalysis("ok")
	}

	if as.cache != nil && result.Message == "" {
		if err := as.cache.Set(ctx, key, result, as.analysisTTL); err != nil {
			as.logger.WithError(err).WithField("portfolio_id", id).Warn("Failed to cache analysis result")
		}
	}

	return result, nil
}

// HealthScore computes the composite 0-100 health score and records a
// snapshot for trend history.
func (as *AnalyticsService) HealthScore(ctx context.Context, ownerID, id, period string) (*views.HealthScore, error) {
	result, err := as.Analyze(ctx, ownerID, id, period)
	if err != nil {
		return nil, err
	}

	score := views.ComputeHealthScore(result)

	if result.Message == "" {
		record := score.Record()
		if oid, err := primitive.ObjectIDFromHex(result.PortfolioID); err == nil {
			record.PortfolioID = oid
		}
		if err := as.healthRepo.Create(ctx, record); err != nil {
			as.logger.WithError(err).WithField("portfolio_id", id).Warn("Failed to record health score snapshot")
		}
	}

	return score, nil
}

// HealthScoreHistory returns recorded health score snapshots, newest first.
func (as *AnalyticsService) HealthScoreHistory(ctx context.Context, ownerID, id string, limit int) ([]models.HealthScoreRecord, error) {
	portfolio, err := loadOwnedPortfolio(ctx, as.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}
	return as.healthRepo.ListByPortfolio(ctx, portfolio.ID, limit)
}

// Rebalance builds buy/sell/hold suggestions against the stored targets.
func (as *AnalyticsService) Rebalance(ctx context.Context, ownerID, id string, considerTolerance bool) (*views.RebalancePlan, error) {
	portfolio, err := loadOwnedPortfolio(ctx, as.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	result, err := as.Analyze(ctx, ownerID, id, "")
	if err != nil {
		return nil, err
	}

	return as.rebalancer.Plan(ctx, portfolio, result, considerTolerance)
}

// Scenario applies a hypothetical market shock to the current holdings.
func (as *AnalyticsService) Scenario(ctx context.Context, ownerID, id string, req views.ScenarioRequest) (*views.ScenarioResult, error) {
	result, err := as.Analyze(ctx, ownerID, id, "")
	if err != nil {
		return nil, err
	}
	return views.SimulateScenario(result, req)
}

// Scenarios lists the predefined scenario catalogue.
func (as *AnalyticsService) Scenarios() []views.ScenarioInfo {
	return views.PredefinedScenarios()
}

// TaxReport scans holdings for tax-loss harvesting opportunities using the
// transaction log for wash-sale detection.
func (as *AnalyticsService) TaxReport(ctx context.Context, ownerID, id string) (*views.TaxReport, error) {
	portfolio, err := loadOwnedPortfolio(ctx, as.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	result, err := as.Analyze(ctx, ownerID, id, "")
	if err != nil {
		return nil, err
	}

	transactions, err := as.transactionRepo.ListByPortfolio(ctx, portfolio.ID, models.TransactionFilter{}, 0)
	if err != nil {
		as.logger.WithError(err).WithField("portfolio_id", id).Warn("Failed to load transactions for wash-sale check")
		transactions = nil
	}

	return views.ComputeTaxReport(result, transactions, as.cfg.TaxRate, time.Now().UTC())
}

// Backtest replays the current holdings over a historical window.
func (as *AnalyticsService) Backtest(ctx context.Context, ownerID, id string, req BacktestRequest) (*models.BacktestResult, error) {
	start, end, err := backtestWindow(req)
	if err != nil {
		return nil, err
	}

	portfolio, err := loadOwnedPortfolio(ctx, as.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	return as.engine.Backtest(ctx, portfolio, start, end)
}

func backtestWindow(req BacktestRequest) (time.Time, time.Time, error) {
	if req.Period != "" {
		years, ok := backtestPeriodYears[req.Period]
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: unsupported backtest period %q", ErrInvalidDateRange, req.Period)
		}
		end := time.Now().UTC()
		return end.AddDate(-years, 0, 0), end, nil
	}

	start, err := time.Parse(series.DateFormat, req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidDateRange)
	}
	end, err := time.Parse(series.DateFormat, req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrInvalidDateRange)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date must be after start_date", ErrInvalidDateRange)
	}
	return start, end, nil
}

// Correlation computes the pairwise correlation matrix and diversification
// score for a portfolio's holdings.
func (as *AnalyticsService) Correlation(ctx context.Context, ownerID, id, period string) (*models.CorrelationReport, error) {
	period, err := as.normalizePeriod(period)
	if err != nil {
		return nil, err
	}

	portfolio, err := loadOwnedPortfolio(ctx, as.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	return as.engine.AnalyzeCorrelation(ctx, portfolio, period)
}

// RiskReport generates a plain-language risk narrative from the analysis.
func (as *AnalyticsService) RiskReport(ctx context.Context, ownerID, id, period string) (*RiskNarrative, error) {
	result, err := as.Analyze(ctx, ownerID, id, period)
	if err != nil {
		return nil, err
	}
	if result.Message != "" {
		return nil, analytics.ErrNoHoldings
	}

	return &RiskNarrative{
		PortfolioID: result.PortfolioID,
		Report:      as.narrative.RiskReport(ctx, result),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (as *AnalyticsService) normalizePeriod(period string) (string, error) {
	if period == "" {
		return as.cfg.DefaultPeriod, nil
	}
	if !validPeriods[period] {
		return "", fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	return period, nil
}
