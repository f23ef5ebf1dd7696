package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
)

// MongoTransactionRepository implements TransactionRepository using MongoDB
type MongoTransactionRepository struct {
	collection *mongo.Collection
}

// NewTransactionRepository creates a new MongoDB transaction repository
func NewTransactionRepository(db *mongo.Database) repositories.TransactionRepository {
	return &MongoTransactionRepository{
		collection: db.Collection("transactions"),
	}
}

// Create appends a transaction record
func (r *MongoTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListByPortfolio retrieves transactions newest first, optionally filtered
func (r *MongoTransactionRepository) ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, filter models.TransactionFilter, limit int) ([]models.Transaction, error) {
	query := bson.M{"portfolio_id": portfolioID}
	if filter.Symbol != "" {
		query["symbol"] = filter.Symbol
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.StartDate != nil || filter.EndDate != nil {
		window := bson.M{}
		if filter.StartDate != nil {
			window["$gte"] = *filter.StartDate
		}
		if filter.EndDate != nil {
			window["$lte"] = *filter.EndDate
		}
		query["timestamp"] = window
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []models.Transaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return transactions, nil
}

// DeleteByPortfolio removes all transactions of a deleted portfolio
func (r *MongoTransactionRepository) DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"portfolio_id": portfolioID})
	if err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}

// MongoHealthScoreRepository implements HealthScoreRepository using MongoDB
type MongoHealthScoreRepository struct {
	collection *mongo.Collection
}

// NewHealthScoreRepository creates a new MongoDB health score repository
func NewHealthScoreRepository(db *mongo.Database) repositories.HealthScoreRepository {
	return &MongoHealthScoreRepository{
		collection: db.Collection("health_scores"),
	}
}

// Create appends a health score snapshot
func (r *MongoHealthScoreRepository) Create(ctx context.Context, record *models.HealthScoreRecord) error {
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create health score record: %w", err)
	}
	return nil
}

// ListByPortfolio retrieves snapshots newest first
func (r *MongoHealthScoreRepository) ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, limit int) ([]models.HealthScoreRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"portfolio_id": portfolioID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list health scores: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.HealthScoreRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode health scores: %w", err)
	}
	return records, nil
}

// DeleteByPortfolio removes the history of a deleted portfolio
func (r *MongoHealthScoreRepository) DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"portfolio_id": portfolioID})
	if err != nil {
		return fmt.Errorf("failed to delete health scores: %w", err)
	}
	return nil
}
