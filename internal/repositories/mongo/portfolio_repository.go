// Package mongo provides the MongoDB implementations of the repository
// interfaces.
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

// MongoPortfolioRepository implements PortfolioRepository using MongoDB
type MongoPortfolioRepository struct {
	collection *mongo.Collection
}

// NewPortfolioRepository creates a new MongoDB portfolio repository
func NewPortfolioRepository(db *mongo.Database) repositories.PortfolioRepository {
	return &MongoPortfolioRepository{
		collection: db.Collection("portfolios"),
	}
}

// Create creates a new portfolio
func (r *MongoPortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	if portfolio.ID.IsZero() {
		portfolio.ID = primitive.NewObjectID()
	}
	now := time.Now()
	portfolio.CreatedAt = now
	portfolio.UpdatedAt = now
	if portfolio.Holdings == nil {
		portfolio.Holdings = []models.Holding{}
	}

	_, err := r.collection.InsertOne(ctx, portfolio)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// GetByID retrieves a portfolio by its ID
func (r *MongoPortfolioRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&portfolio)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &portfolio, nil
}

// ListByOwner retrieves all portfolios belonging to an owner
func (r *MongoPortfolioRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer cursor.Close(ctx)

	var portfolios []*models.Portfolio
	if err := cursor.All(ctx, &portfolios); err != nil {
		return nil, fmt.Errorf("failed to decode portfolios: %w", err)
	}
	return portfolios, nil
}

// ListAll retrieves every portfolio, paged; used by background jobs
func (r *MongoPortfolioRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer cursor.Close(ctx)

	var portfolios []*models.Portfolio
	if err := cursor.All(ctx, &portfolios); err != nil {
		return nil, fmt.Errorf("failed to decode portfolios: %w", err)
	}
	return portfolios, nil
}

// Update replaces a portfolio's mutable fields
func (r *MongoPortfolioRepository) Update(ctx context.Context, portfolio *models.Portfolio) error {
	portfolio.UpdatedAt = time.Now()

	update := bson.M{"$set": bson.M{
		"name":        portfolio.Name,
		"description": portfolio.Description,
		"updated_at":  portfolio.UpdatedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": portfolio.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// Delete removes a portfolio by ID
func (r *MongoPortfolioRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// AddHolding appends a holding to the portfolio's holdings list
func (r *MongoPortfolioRepository) AddHolding(ctx context.Context, portfolioID primitive.ObjectID, holding models.Holding) error {
	update := bson.M{
		"$push": bson.M{"holdings": holding},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": portfolioID}, update)
	if err != nil {
		return fmt.Errorf("failed to add holding: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// UpdateHolding replaces one holding identified by its holding ID
func (r *MongoPortfolioRepository) UpdateHolding(ctx context.Context, portfolioID primitive.ObjectID, holding models.Holding) error {
	filter := bson.M{"_id": portfolioID, "holdings.id": holding.ID}
	update := bson.M{"$set": bson.M{
		"holdings.$": holding,
		"updated_at": time.Now(),
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// RemoveHolding removes one holding identified by its holding ID
func (r *MongoPortfolioRepository) RemoveHolding(ctx context.Context, portfolioID primitive.ObjectID, holdingID string) error {
	update := bson.M{
		"$pull": bson.M{"holdings": bson.M{"id": holdingID}},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": portfolioID}, update)
	if err != nil {
		return fmt.Errorf("failed to remove holding: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	if result.ModifiedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// SetTargetAllocations replaces the portfolio's rebalancing targets
func (r *MongoPortfolioRepository) SetTargetAllocations(ctx context.Context, portfolioID primitive.ObjectID, allocations map[string]models.TargetAllocation) error {
	update := bson.M{"$set": bson.M{
		"target_allocations": allocations,
		"updated_at":         time.Now(),
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": portfolioID}, update)
	if err != nil {
		return fmt.Errorf("failed to set target allocations: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
