// Package fmp provides a client for the financialmodelingprep.com quote API.
package fmp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stonksbot/stonks/internal/clientdata"
)

var (
	// ErrEmptyRequest is returned when no tickers are given.
	ErrEmptyRequest = errors.New("empty list of tickers given")

	// ErrExhaustedCredentials is returned once every key in the pool has
	// failed for a single request.
	ErrExhaustedCredentials = errors.New("all quote provider credentials failed")
)

// Client for financialmodelingprep.com.
// Every outbound request rotates to the next credential in the pool; on a
// transport- or provider-level failure it retries with the following key,
// up to pool size attempts.
type Client struct {
	baseURL   string
	client    *http.Client
	pool      *CredentialPool
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewClient creates a new financialmodelingprep.com client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(pool *CredentialPool, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   "https://financialmodelingprep.com",
		client:    &http.Client{Timeout: 10 * time.Second},
		pool:      pool,
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "fmp").Logger(),
	}
}

// SetBaseURL overrides the provider URL. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// quoteEntry is one element of the provider's quote response.
type quoteEntry struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// GetPrices fetches current prices for the given tickers in one batched call.
// Tickers the provider does not know are omitted from the result map; callers
// must tolerate partial results.
func (c *Client) GetPrices(tickers []string) (map[string]float64, error) {
	if len(tickers) == 0 {
		return nil, ErrEmptyRequest
	}

	// Sort for a stable batch path and cache key.
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)
	batch := strings.Join(sorted, ",")

	// Check persistent cache for fresh data. A cache hit makes no outbound
	// request, so the rotation cursor stays where it is.
	if c.cacheRepo != nil {
		var cached map[string]float64
		if ok, err := c.cacheRepo.GetIfFresh("quotes", batch, &cached); err == nil && ok {
			c.log.Debug().Str("batch", batch).Msg("Quote cache hit")
			return cached, nil
		}
	}

	prices, err := withRotation(c, func(apiKey string) (map[string]float64, error) {
		return c.fetchQuotes(batch, apiKey)
	})
	if err != nil {
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("quotes", batch, prices, clientdata.TTLQuote); err != nil {
			c.log.Warn().Err(err).Str("batch", batch).Msg("Failed to cache quotes")
		}
	}

	return prices, nil
}

// IsMarketOpen asks the provider whether the US stock market is currently open.
func (c *Client) IsMarketOpen() (bool, error) {
	if c.cacheRepo != nil {
		var cached bool
		if ok, err := c.cacheRepo.GetIfFresh("market_status", "US", &cached); err == nil && ok {
			return cached, nil
		}
	}

	open, err := withRotation(c, func(apiKey string) (bool, error) {
		return c.fetchMarketOpen(apiKey)
	})
	if err != nil {
		return false, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("market_status", "US", open, clientdata.TTLMarketStatus); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache market status")
		}
	}

	return open, nil
}

// withRotation runs fn once per credential until it succeeds, rotating the
// pool cursor before every attempt. Once the whole pool has failed for this
// request it reports ErrExhaustedCredentials wrapping the last cause.
func withRotation[T any](c *Client, fn func(apiKey string) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= c.pool.Size(); attempt++ {
		result, err := fn(c.pool.Next())
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("pool_size", c.pool.Size()).
			Msg("Provider request failed, rotating credential")
	}

	return zero, fmt.Errorf("%w after %d attempts: %v", ErrExhaustedCredentials, c.pool.Size(), lastErr)
}

func (c *Client) fetchQuotes(batch, apiKey string) (map[string]float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/quote/%s?apikey=%s", c.baseURL, batch, url.QueryEscape(apiKey))

	resp, err := c.client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	// The provider signals failure with an object carrying an
	// "Error Message" field instead of the usual array.
	var entries []quoteEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		var providerErr struct {
			Message string `json:"Error Message"`
		}
		if jsonErr := json.Unmarshal(body, &providerErr); jsonErr == nil && providerErr.Message != "" {
			return nil, fmt.Errorf("provider error: %s", providerErr.Message)
		}
		return nil, fmt.Errorf("unexpected quote payload: %w", err)
	}

	prices := make(map[string]float64, len(entries))
	for _, e := range entries {
		prices[e.Symbol] = e.Price
	}
	return prices, nil
}

func (c *Client) fetchMarketOpen(apiKey string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v3/is-the-market-open?apikey=%s", c.baseURL, url.QueryEscape(apiKey))

	resp, err := c.client.Get(endpoint)
	if err != nil {
		return false, fmt.Errorf("market status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("market status endpoint returned status %d", resp.StatusCode)
	}

	var status struct {
		IsTheStockMarketOpen *bool `json:"isTheStockMarketOpen"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("unexpected market status payload: %w", err)
	}
	if status.IsTheStockMarketOpen == nil {
		return false, fmt.Errorf("market status payload missing isTheStockMarketOpen")
	}

	return *status.IsTheStockMarketOpen, nil
}
