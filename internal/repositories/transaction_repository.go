package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/models"
)

// TransactionRepository defines the interface for the append-only holding
// change log.
type TransactionRepository interface {
	// Create appends a transaction record
	Create(ctx context.Context, tx *models.Transaction) error

	// ListByPortfolio retrieves transactions newest first, optionally filtered
	ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, filter models.TransactionFilter, limit int) ([]models.Transaction, error)

	// DeleteByPortfolio removes all transactions of a deleted portfolio
	DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error
}

// HealthScoreRepository defines the interface for the health score history.
type HealthScoreRepository interface {
	// Create appends a health score snapshot
	Create(ctx context.Context, record *models.HealthScoreRecord) error

	// ListByPortfolio retrieves snapshots newest first
	ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, limit int) ([]models.HealthScoreRecord, error)

	// DeleteByPortfolio removes the history of a deleted portfolio
	DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error
}
