package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
)

// alertListLimit caps alert queries; nobody needs more than this per portfolio.
const alertListLimit = 100

// MongoAlertRepository implements AlertRepository using MongoDB
type MongoAlertRepository struct {
	collection *mongo.Collection
}

// NewAlertRepository creates a new MongoDB alert repository
func NewAlertRepository(db *mongo.Database) repositories.AlertRepository {
	return &MongoAlertRepository{
		collection: db.Collection("alerts"),
	}
}

// Create stores a new alert
func (r *MongoAlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	alert.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its ID
func (r *MongoAlertRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	var alert models.Alert
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

// ListByPortfolio retrieves a portfolio's alerts newest first
func (r *MongoAlertRepository) ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, enabledOnly bool) ([]models.Alert, error) {
	filter := bson.M{"portfolio_id": portfolioID}
	if enabledOnly {
		filter["enabled"] = true
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(alertListLimit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer cursor.Close(ctx)

	alerts := []models.Alert{}
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}

// ListTriggered retrieves enabled, triggered alerts across the given portfolios
func (r *MongoAlertRepository) ListTriggered(ctx context.Context, portfolioIDs []primitive.ObjectID) ([]models.Alert, error) {
	if len(portfolioIDs) == 0 {
		return []models.Alert{}, nil
	}

	filter := bson.M{
		"portfolio_id": bson.M{"$in": portfolioIDs},
		"enabled":      true,
		"triggered":    true,
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "triggered_at", Value: -1}}).
		SetLimit(alertListLimit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggered alerts: %w", err)
	}
	defer cursor.Close(ctx)

	alerts := []models.Alert{}
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}

// Update replaces an alert's mutable fields
func (r *MongoAlertRepository) Update(ctx context.Context, alert *models.Alert) error {
	update := bson.M{"$set": bson.M{
		"threshold":    alert.Threshold,
		"condition":    alert.Condition,
		"enabled":      alert.Enabled,
		"notes":        alert.Notes,
		"triggered":    alert.Triggered,
		"triggered_at": alert.TriggeredAt,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": alert.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// MarkTriggered flags an alert as fired at the given time
func (r *MongoAlertRepository) MarkTriggered(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"triggered":    true,
		"triggered_at": at,
		"last_checked": at,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// MarkChecked records an evaluation that did not fire
func (r *MongoAlertRepository) MarkChecked(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_checked": at}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark alert checked: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// Delete removes an alert by ID
func (r *MongoAlertRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// DeleteByPortfolio removes all alerts of a deleted portfolio
func (r *MongoAlertRepository) DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"portfolio_id": portfolioID})
	if err != nil {
		return fmt.Errorf("failed to delete alerts: %w", err)
	}
	return nil
}
