package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Portfolio represents a user's investment portfolio
type Portfolio struct {
	ID                primitive.ObjectID          `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID           string                      `bson:"owner_id" json:"owner_id"`
	Name              string                      `bson:"name" json:"name"`
	Description       string                      `bson:"description" json:"description"`
	Holdings          []Holding                   `bson:"holdings" json:"holdings"`
	TargetAllocations map[string]TargetAllocation `bson:"target_allocations,omitempty" json:"target_allocations,omitempty"`
	CreatedAt         time.Time                   `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time                   `bson:"updated_at" json:"updated_at"`
}

// Holding represents a position (symbol, share count, cost basis) in a portfolio
type Holding struct {
	ID            string          `bson:"id" json:"id"`
	Symbol        string          `bson:"symbol" json:"symbol"`
	Shares        decimal.Decimal `bson:"shares" json:"shares"`
	PurchasePrice decimal.Decimal `bson:"purchase_price" json:"purchase_price"`
	PurchaseDate  time.Time       `bson:"purchase_date" json:"purchase_date"`
}

// TargetAllocation represents a rebalancing target for one symbol
type TargetAllocation struct {
	TargetPercent float64 `bson:"target_percent" json:"target_percent"`
	Tolerance     float64 `bson:"tolerance" json:"tolerance"`
}

// Transaction types
const (
	TransactionBuy    = "BUY"
	TransactionSell   = "SELL"
	TransactionEdit   = "EDIT"
	TransactionDelete = "DELETE"
)

// Transaction represents an append-only record of a holding mutation
type Transaction struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	PortfolioID    primitive.ObjectID `bson:"portfolio_id" json:"portfolio_id"`
	HoldingID      string             `bson:"holding_id" json:"holding_id"`
	Type           string             `bson:"type" json:"type"`
	Symbol         string             `bson:"symbol" json:"symbol"`
	Shares         decimal.Decimal    `bson:"shares" json:"shares"`
	Price          decimal.Decimal    `bson:"price" json:"price"`
	PurchaseDate   time.Time          `bson:"purchase_date" json:"purchase_date"`
	PreviousShares *decimal.Decimal   `bson:"previous_shares,omitempty" json:"previous_shares,omitempty"`
	PreviousPrice  *decimal.Decimal   `bson:"previous_price,omitempty" json:"previous_price,omitempty"`
	PreviousSymbol string             `bson:"previous_symbol,omitempty" json:"previous_symbol,omitempty"`
	Notes          string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// TransactionFilter narrows a transaction history query
type TransactionFilter struct {
	Symbol    string
	Type      string
	StartDate *time.Time
	EndDate   *time.Time
}

// HealthScoreRecord is a timestamped health score snapshot for trend display
type HealthScoreRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	PortfolioID primitive.ObjectID `bson:"portfolio_id" json:"portfolio_id"`
	Score       float64            `bson:"score" json:"score"`
	Categories  map[string]float64 `bson:"categories" json:"categories"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}
