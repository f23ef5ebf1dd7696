package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/models"
)

// AlertRepository defines the interface for portfolio alert persistence.
type AlertRepository interface {
	// Create stores a new alert
	Create(ctx context.Context, alert *models.Alert) error

	// GetByID retrieves an alert by its ID
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)

	// ListByPortfolio retrieves a portfolio's alerts newest first, optionally
	// restricted to enabled ones
	ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, enabledOnly bool) ([]models.Alert, error)

	// ListTriggered retrieves enabled, triggered alerts across the given
	// portfolios, most recently triggered first
	ListTriggered(ctx context.Context, portfolioIDs []primitive.ObjectID) ([]models.Alert, error)

	// Update replaces an alert's mutable fields
	Update(ctx context.Context, alert *models.Alert) error

	// MarkTriggered flags an alert as fired at the given time
	MarkTriggered(ctx context.Context, id primitive.ObjectID, at time.Time) error

	// MarkChecked records an evaluation that did not fire
	MarkChecked(ctx context.Context, id primitive.ObjectID, at time.Time) error

	// Delete removes an alert by ID
	Delete(ctx context.Context, id primitive.ObjectID) error

	// DeleteByPortfolio removes all alerts of a deleted portfolio
	DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error
}
