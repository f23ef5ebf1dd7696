package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
	"portfolio-analytics-api/pkg/cache"
)

var (
	// ErrAccessDenied is returned when a portfolio belongs to another user.
	ErrAccessDenied = errors.New("portfolio does not belong to the requesting user")

	// ErrInvalidID is returned for a malformed portfolio identifier.
	ErrInvalidID = errors.New("invalid portfolio id")

	// ErrInvalidHolding is returned for a holding with non-positive shares.
	ErrInvalidHolding = errors.New("holding shares must be positive")

	// ErrSymbolNotFound is returned when a symbol cannot be priced.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrInvalidAllocation is returned when target allocations are malformed
	// or sum to more than 100 percent.
	ErrInvalidAllocation = errors.New("invalid target allocations")
)

// Interfaces for testing

type CacheInterface interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type MarketClientInterface interface {
	GetQuote(ctx context.Context, symbol string) (*models.InstrumentInfo, error)
	GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
}

type PublisherInterface interface {
	Publish(tx *models.Transaction) error
}

// CreatePortfolioRequest is the payload for creating a portfolio.
type CreatePortfolioRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// UpdatePortfolioRequest is the payload for renaming a portfolio.
type UpdatePortfolioRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// AddHoldingRequest is the payload for adding a position. PurchasePrice is
// optional; when omitted the current market quote is used.
type AddHoldingRequest struct {
	Symbol        string           `json:"symbol" binding:"required"`
	Shares        decimal.Decimal  `json:"shares" binding:"required"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	PurchaseDate  *time.Time       `json:"purchase_date"`
}

// UpdateHoldingRequest is the payload for editing a position. Nil fields are
// left unchanged.
type UpdateHoldingRequest struct {
	Shares        *decimal.Decimal `json:"shares"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	PurchaseDate  *time.Time       `json:"purchase_date"`
}

// TargetAllocationsRequest is the payload for setting rebalancing targets.
type TargetAllocationsRequest struct {
	Allocations map[string]models.TargetAllocation `json:"allocations" binding:"required"`
}

// PortfolioService owns the portfolio and holding lifecycle: CRUD, the
// append-only transaction log, and target allocations.
type PortfolioService struct {
	portfolioRepo   repositories.PortfolioRepository
	transactionRepo repositories.TransactionRepository
	healthRepo      repositories.HealthScoreRepository
	alertRepo       repositories.AlertRepository
	market          MarketClientInterface
	publisher       PublisherInterface
	cache           CacheInterface
	logger          *logrus.Logger
}

func NewPortfolioService(
	portfolioRepo repositories.PortfolioRepository,
	transactionRepo repositories.TransactionRepository,
	healthRepo repositories.HealthScoreRepository,
	alertRepo repositories.AlertRepository,
	market MarketClientInterface,
	publisher PublisherInterface,
	cacheClient CacheInterface,
	logger *logrus.Logger,
) *PortfolioService {
	return &PortfolioService{
		portfolioRepo:   portfolioRepo,
		transactionRepo: transactionRepo,
		healthRepo:      healthRepo,
		alertRepo:       alertRepo,
		market:          market,
		publisher:       publisher,
		cache:           cacheClient,
		logger:          logger,
	}
}

// Create creates a new, empty portfolio owned by ownerID.
func (ps *PortfolioService) Create(ctx context.Context, ownerID string, req CreatePortfolioRequest) (*models.Portfolio, error) {
	portfolio := &models.Portfolio{
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		Holdings:    []models.Holding{},
	}

	if err := ps.portfolioRepo.Create(ctx, portfolio); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	ps.logger.WithFields(logrus.Fields{
		"portfolio_id": portfolio.ID.Hex(),
		"owner_id":     ownerID,
	}).Info("Portfolio created")

	return portfolio, nil
}

// Get returns a portfolio after verifying ownership.
func (ps *PortfolioService) Get(ctx context.Context, ownerID, id string) (*models.Portfolio, error) {
	return loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
}

// List returns every portfolio owned by ownerID, newest first.
func (ps *PortfolioService) List(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	portfolios, err := ps.portfolioRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	return portfolios, nil
}

// Update renames a portfolio.
func (ps *PortfolioService) Update(ctx context.Context, ownerID, id string, req UpdatePortfolioRequest) (*models.Portfolio, error) {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	portfolio.Name = req.Name
	portfolio.Description = req.Description
	if err := ps.portfolioRepo.Update(ctx, portfolio); err != nil {
		return nil, fmt.Errorf("failed to update portfolio: %w", err)
	}

	return ps.portfolioRepo.GetByID(ctx, portfolio.ID)
}

// Delete removes a portfolio together with its transaction log, health score
// history, alerts and cached analyses.
func (ps *PortfolioService) Delete(ctx context.Context, ownerID, id string) error {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return err
	}

	if err := ps.portfolioRepo.Delete(ctx, portfolio.ID); err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}

	if err := ps.transactionRepo.DeleteByPortfolio(ctx, portfolio.ID); err != nil {
		ps.logger.WithError(err).WithField("portfolio_id", id).Warn("Failed to delete transaction history")
	}
	if err := ps.healthRepo.DeleteByPortfolio(ctx, portfolio.ID); err != nil {
		ps.logger.WithError(err).WithField("portfolio_id", id).Warn("Failed to delete health score history")
	}
	if err := ps.alertRepo.DeleteByPortfolio(ctx, portfolio.ID); err != nil {
		ps.logger.WithError(err).WithField("portfolio_id", id).Warn("Failed to delete alerts")
	}

	ps.invalidateAnalysis(ctx, id)

	ps.logger.WithFields(logrus.Fields{
		"portfolio_id": id,
		"owner_id":     ownerID,
	}).Info("Portfolio deleted")

	return nil
}

// AddHolding adds a position to a portfolio. When no purchase price is given
// the current quote is used as the cost basis.
func (ps *PortfolioService) AddHolding(ctx context.Context, ownerID, id string, req AddHoldingRequest) (*models.Holding, error) {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	if req.Shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidHolding
	}

	purchaseDate := time.Now().UTC()
	if req.PurchaseDate != nil {
		purchaseDate = *req.PurchaseDate
	}

	price, err := ps.resolvePurchasePrice(ctx, req.Symbol, req.PurchasePrice, purchaseDate)
	if err != nil {
		return nil, err
	}

	holding := models.Holding{
		ID:            uuid.NewString(),
		Symbol:        req.Symbol,
		Shares:        req.Shares,
		PurchasePrice: price,
		PurchaseDate:  purchaseDate,
	}

	if err := ps.portfolioRepo.AddHolding(ctx, portfolio.ID, holding); err != nil {
		return nil, fmt.Errorf("failed to add holding: %w", err)
	}

	ps.logTransaction(ctx, &models.Transaction{
		PortfolioID:  portfolio.ID,
		HoldingID:    holding.ID,
		Type:         models.TransactionBuy,
		Symbol:       holding.Symbol,
		Shares:       holding.Shares,
		Price:        holding.PurchasePrice,
		PurchaseDate: holding.PurchaseDate,
	})
	ps.invalidateAnalysis(ctx, id)

	return &holding, nil
}

// UpdateHolding edits an existing position. The transaction log keeps the
// previous values alongside the new ones.
func (ps *PortfolioService) UpdateHolding(ctx context.Context, ownerID, id, holdingID string, req UpdateHoldingRequest) (*models.Holding, error) {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	existing, ok := findHolding(portfolio, holdingID)
	if !ok {
		return nil, repositories.ErrNotFound
	}

	previousShares := existing.Shares
	previousPrice := existing.PurchasePrice

	if req.Shares != nil {
		if req.Shares.LessThanOrEqual(decimal.Zero) {
			return nil, ErrInvalidHolding
		}
		existing.Shares = *req.Shares
	}
	if req.PurchasePrice != nil {
		existing.PurchasePrice = *req.PurchasePrice
	}
	if req.PurchaseDate != nil {
		existing.PurchaseDate = *req.PurchaseDate
	}

	if err := ps.portfolioRepo.UpdateHolding(ctx, portfolio.ID, existing); err != nil {
		return nil, fmt.Errorf("failed to update holding: %w", err)
	}

	ps.logTransaction(ctx, &models.Transaction{
		PortfolioID:    portfolio.ID,
		HoldingID:      existing.ID,
		Type:           models.TransactionEdit,
		Symbol:         existing.Symbol,
		Shares:         existing.Shares,
		Price:          existing.PurchasePrice,
		PurchaseDate:   existing.PurchaseDate,
		PreviousShares: &previousShares,
		PreviousPrice:  &previousPrice,
	})
	ps.invalidateAnalysis(ctx, id)

	return &existing, nil
}

// RemoveHolding removes a position from a portfolio.
func (ps *PortfolioService) RemoveHolding(ctx context.Context, ownerID, id, holdingID string) error {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return err
	}

	existing, ok := findHolding(portfolio, holdingID)
	if !ok {
		return repositories.ErrNotFound
	}

	if err := ps.portfolioRepo.RemoveHolding(ctx, portfolio.ID, holdingID); err != nil {
		return fmt.Errorf("failed to remove holding: %w", err)
	}

	ps.logTransaction(ctx, &models.Transaction{
		PortfolioID:  portfolio.ID,
		HoldingID:    existing.ID,
		Type:         models.TransactionDelete,
		Symbol:       existing.Symbol,
		Shares:       existing.Shares,
		Price:        existing.PurchasePrice,
		PurchaseDate: existing.PurchaseDate,
	})
	ps.invalidateAnalysis(ctx, id)

	return nil
}

// SetTargetAllocations replaces the rebalancing targets for a portfolio.
// Percentages must be positive and sum to at most 100.
func (ps *PortfolioService) SetTargetAllocations(ctx context.Context, ownerID, id string, req TargetAllocationsRequest) (*models.Portfolio, error) {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	if len(req.Allocations) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", ErrInvalidAllocation)
	}

	total := 0.0
	for symbol, target := range req.Allocations {
		if target.TargetPercent <= 0 {
			return nil, fmt.Errorf("%w: target for %s must be positive", ErrInvalidAllocation, symbol)
		}
		if target.Tolerance < 0 {
			return nil, fmt.Errorf("%w: tolerance for %s must not be negative", ErrInvalidAllocation, symbol)
		}
		total += target.TargetPercent
	}
	if total > 100.0001 {
		return nil, fmt.Errorf("%w: targets sum to %.2f%%", ErrInvalidAllocation, total)
	}

	if err := ps.portfolioRepo.SetTargetAllocations(ctx, portfolio.ID, req.Allocations); err != nil {
		return nil, fmt.Errorf("failed to set target allocations: %w", err)
	}

	return ps.portfolioRepo.GetByID(ctx, portfolio.ID)
}

// ListTransactions returns a portfolio's transaction log, newest first.
func (ps *PortfolioService) ListTransactions(ctx context.Context, ownerID, id string, filter models.TransactionFilter, limit int) ([]models.Transaction, error) {
	portfolio, err := loadOwnedPortfolio(ctx, ps.portfolioRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	transactions, err := ps.transactionRepo.ListByPortfolio(ctx, portfolio.ID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

// resolvePurchasePrice picks the cost basis for a new holding: the caller's
// explicit price, else the close on the purchase date, else the current quote.
func (ps *PortfolioService) resolvePurchasePrice(ctx context.Context, symbol string, given *decimal.Decimal, purchaseDate time.Time) (decimal.Decimal, error) {
	if given != nil && given.GreaterThan(decimal.Zero) {
		return *given, nil
	}

	// A week of lookback covers weekends and market holidays before the
	// purchase date.
	if purchaseDate.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		points, err := ps.market.GetHistory(ctx, symbol, purchaseDate.AddDate(0, 0, -7), purchaseDate.AddDate(0, 0, 1))
		if err == nil && len(points) > 0 {
			return points[len(points)-1].Close, nil
		}
		if err != nil {
			ps.logger.WithError(err).WithField("symbol", symbol).Warn("Historical price lookup failed, falling back to quote")
		}
	}

	info, err := ps.market.GetQuote(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	if info == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return info.Price, nil
}

// logTransaction appends to the transaction log and publishes the event.
// Neither failure aborts the holding mutation that triggered it.
func (ps *PortfolioService) logTransaction(ctx context.Context, tx *models.Transaction) {
	if err := ps.transactionRepo.Create(ctx, tx); err != nil {
		ps.logger.WithError(err).WithFields(logrus.Fields{
			"portfolio_id": tx.PortfolioID.Hex(),
			"type":         tx.Type,
			"symbol":       tx.Symbol,
		}).Error("Failed to record transaction")
		return
	}

	if ps.publisher != nil {
		if err := ps.publisher.Publish(tx); err != nil {
			ps.logger.WithError(err).WithField("transaction_id", tx.ID.Hex()).Warn("Failed to publish transaction event")
		}
	}
}

func (ps *PortfolioService) invalidateAnalysis(ctx context.Context, portfolioID string) {
	if ps.cache == nil {
		return
	}
	if err := ps.cache.DeleteByPattern(ctx, cache.AnalysisPattern(portfolioID)); err != nil {
		ps.logger.WithError(err).WithField("portfolio_id", portfolioID).Warn("Failed to invalidate cached analysis")
	}
}

func findHolding(portfolio *models.Portfolio, holdingID string) (models.Holding, bool) {
	for _, h := range portfolio.Holdings {
		if h.ID == holdingID {
			return h, true
		}
	}
	return models.Holding{}, false
}

// loadOwnedPortfolio resolves a portfolio id and verifies the caller owns it.
func loadOwnedPortfolio(ctx context.Context, repo repositories.PortfolioRepository, ownerID, id string) (*models.Portfolio, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	portfolio, err := repo.GetByID(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if portfolio.OwnerID != ownerID {
		return nil, ErrAccessDenied
	}
	return portfolio, nil
}
