package analytics

import "errors"

// Surfaced error conditions. Per-symbol fetch failures and unavailable
// benchmarks are recovered internally and never reach the caller.
var (
	ErrNoHoldings          = errors.New("portfolio has no holdings")
	ErrNoValidData         = errors.New("no valid market data available for any holding")
	ErrZeroPortfolioValue  = errors.New("portfolio value is zero")
	ErrInsufficientHistory = errors.New("insufficient historical data for analysis")
)
