package clients

import (
	"context"
	"time"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/pkg/cache"
)

type marketCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedMarketDataClient is a cache-aside decorator over MarketDataClient.
// Price history and quotes are shared across portfolios, so caching them
// bounds the fan-out cost when many analyses hit the same symbols. Misses and
// unknown symbols pass straight through and are never cached.
type CachedMarketDataClient struct {
	*MarketDataClient
	cache      marketCache
	historyTTL time.Duration
	quoteTTL   time.Duration
}

func NewCachedMarketDataClient(inner *MarketDataClient, c marketCache, historyTTL, quoteTTL time.Duration) *CachedMarketDataClient {
	return &CachedMarketDataClient{
		MarketDataClient: inner,
		cache:            c,
		historyTTL:       historyTTL,
		quoteTTL:         quoteTTL,
	}
}

func (c *CachedMarketDataClient) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	key := cache.PriceHistoryKey(symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var cached []models.PricePoint
	if err := c.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	points, err := c.MarketDataClient.GetHistory(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(points) > 0 {
		_ = c.cache.Set(ctx, key, points, c.historyTTL)
	}
	return points, nil
}

func (c *CachedMarketDataClient) GetQuote(ctx context.Context, symbol string) (*models.InstrumentInfo, error) {
	key := cache.QuoteKey(symbol)

	var cached models.InstrumentInfo
	if err := c.cache.Get(ctx, key, &cached); err == nil && cached.Symbol != "" {
		return &cached, nil
	}

	info, err := c.MarketDataClient.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if info != nil {
		_ = c.cache.Set(ctx, key, info, c.quoteTTL)
	}
	return info, nil
}
