package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/models"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// PortfolioRepository defines the interface for portfolio data operations
type PortfolioRepository interface {
	// Create creates a new portfolio
	Create(ctx context.Context, portfolio *models.Portfolio) error

	// GetByID retrieves a portfolio by its ID
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Portfolio, error)

	// ListByOwner retrieves all portfolios belonging to an owner
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Portfolio, error)

	// ListAll retrieves every portfolio, paged; used by background jobs
	ListAll(ctx context.Context, limit, offset int) ([]*models.Portfolio, error)

	// Update replaces a portfolio's mutable fields
	Update(ctx context.Context, portfolio *models.Portfolio) error

	// Delete removes a portfolio by ID
	Delete(ctx context.Context, id primitive.ObjectID) error

	// AddHolding appends a holding to the portfolio's holdings list
	AddHolding(ctx context.Context, portfolioID primitive.ObjectID, holding models.Holding) error

	// UpdateHolding replaces one holding identified by its holding ID
	UpdateHolding(ctx context.Context, portfolioID primitive.ObjectID, holding models.Holding) error

	// RemoveHolding removes one holding identified by its holding ID
	RemoveHolding(ctx context.Context, portfolioID primitive.ObjectID, holdingID string) error

	// SetTargetAllocations replaces the portfolio's rebalancing targets
	SetTargetAllocations(ctx context.Context, portfolioID primitive.ObjectID, allocations map[string]models.TargetAllocation) error
}
