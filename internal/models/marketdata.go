package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a single closing price observation for a symbol
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// InstrumentInfo describes a tradable instrument as reported by the
// market-data provider. Sector/Industry may be empty for indices.
type InstrumentInfo struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Sector   string          `json:"sector"`
	Industry string          `json:"industry"`
}
