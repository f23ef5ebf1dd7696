package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
)

// MarketDataClient talks to the external quote/history provider. Calls are
// rate limited client-side so a burst of per-symbol fetches cannot trip the
// provider's quota.
type MarketDataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	timeout    time.Duration
	retries    int
}

func NewMarketDataClient(cfg config.MarketConfig) *MarketDataClient {
	perSecond := float64(cfg.RateLimit) / 60.0
	return &MarketDataClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 5),
		apiKey:  cfg.APIKey,
		timeout: cfg.FetchTimeout,
		retries: cfg.RetryCount,
	}
}

type historyResponse struct {
	Symbol string `json:"symbol"`
	Bars   []struct {
		Date  string          `json:"date"`
		Close json.RawMessage `json:"close"`
	} `json:"bars"`
}

// GetHistory retrieves daily closing prices for a symbol over [start, end].
// An unknown symbol yields an empty slice, not an error, so callers can skip
// it and keep going with the rest of the portfolio.
func (mdc *MarketDataClient) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	endpoint := fmt.Sprintf("%s/history/%s?from=%s&to=%s&interval=1d",
		mdc.baseURL,
		url.PathEscape(strings.ToUpper(symbol)),
		start.Format("2006-01-02"),
		end.Format("2006-01-02"))

	var response struct {
		Data historyResponse `json:"data"`
	}

	found, err := mdc.makeRequest(ctx, http.MethodGet, endpoint, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", symbol, err)
	}
	if !found {
		return nil, nil
	}

	points := make([]models.PricePoint, 0, len(response.Data.Bars))
	for _, bar := range response.Data.Bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}
		close, err := decimalFromRaw(bar.Close)
		if err != nil {
			continue
		}
		points = append(points, models.PricePoint{Date: date, Close: close})
	}
	return points, nil
}

// decimalFromRaw parses a price that the provider may send either as a JSON
// number or as a quoted string.
func decimalFromRaw(raw json.RawMessage) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Trim(string(raw), `"`))
}

// GetHistoryByPeriod retrieves history for a named lookback window ending today.
func (mdc *MarketDataClient) GetHistoryByPeriod(ctx context.Context, symbol, period string) ([]models.PricePoint, error) {
	end := time.Now().UTC()
	start, err := PeriodStart(period, end)
	if err != nil {
		return nil, err
	}
	return mdc.GetHistory(ctx, symbol, start, end)
}

// PeriodStart resolves a lookback period name to its start date.
func PeriodStart(period string, end time.Time) (time.Time, error) {
	switch strings.ToLower(period) {
	case "1mo":
		return end.AddDate(0, -1, 0), nil
	case "3mo":
		return end.AddDate(0, -3, 0), nil
	case "6mo":
		return end.AddDate(0, -6, 0), nil
	case "1y":
		return end.AddDate(-1, 0, 0), nil
	case "2y":
		return end.AddDate(-2, 0, 0), nil
	case "5y":
		return end.AddDate(-5, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported period %q", period)
	}
}

// GetQuote retrieves the current price and instrument profile for a symbol.
// Returns nil for an unknown symbol.
func (mdc *MarketDataClient) GetQuote(ctx context.Context, symbol string) (*models.InstrumentInfo, error) {
	endpoint := fmt.Sprintf("%s/quote/%s", mdc.baseURL, url.PathEscape(strings.ToUpper(symbol)))

	var response struct {
		Data models.InstrumentInfo `json:"data"`
	}

	found, err := mdc.makeRequest(ctx, http.MethodGet, endpoint, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if !found {
		return nil, nil
	}
	response.Data.Symbol = strings.ToUpper(symbol)
	return &response.Data, nil
}

// makeRequest performs a rate-limited GET with retry and exponential backoff.
// The bool result reports whether the resource exists; a 404 is not an error.
func (mdc *MarketDataClient) makeRequest(ctx context.Context, method, endpoint string, response interface{}) (bool, error) {
	var lastErr error

	for attempt := 0; attempt <= mdc.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := mdc.limiter.Wait(ctx); err != nil {
			return false, err
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "Portfolio-Analytics-API/1.0")
		if mdc.apiKey != "" {
			req.Header.Set("X-API-Key", mdc.apiKey)
		}

		resp, err := mdc.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return false, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited by provider")
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: request failed", resp.StatusCode)
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(response)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode response: %w", err)
			continue
		}

		return true, nil
	}

	return false, fmt.Errorf("request failed after %d attempts: %w", mdc.retries+1, lastErr)
}

// IsHealthy checks whether the market data provider responds.
func (mdc *MarketDataClient) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mdc.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := mdc.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
