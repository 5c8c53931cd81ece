package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptofolio/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownSymbol means the oracle does not recognize the ticker.
	ErrUnknownSymbol = errors.New("oracle: unknown symbol")
	// ErrUnavailable means the oracle could not be reached or kept failing.
	ErrUnavailable = errors.New("oracle: unavailable")
)

// Quote is the oracle's answer for a single ticker symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// PriceOracle defines the interface for live price lookups.
type PriceOracle interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}

// Client is a REST client for the price oracle API.
// It implements the PriceOracle interface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ PriceOracle = (*Client)(nil)

// NewClient creates a new price oracle client.
func NewClient(cfg *config.Oracle, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// The oracle is rate-limited on its side; throttle before it does.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

// Lookup resolves a ticker symbol to a live quote. It returns
// ErrUnknownSymbol when the oracle does not know the ticker and
// ErrUnavailable when the oracle cannot be reached or keeps failing.
func (c *Client) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrUnknownSymbol)
	}

	var quote Quote
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&quote).
		SetHeader("Accept", "application/json")

	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/quote", req)
	if err != nil {
		c.logger.Warn("Price lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	case resp.IsError():
		return nil, fmt.Errorf("%w: oracle returned status %s", ErrUnavailable, resp.Status())
	}

	if quote.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price for %s", ErrUnavailable, symbol)
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}

	return &quote, nil
}

// doRequest handles the actual request execution with rate limiting and
// retry logic. Transient failures (HTTP 429, 5xx, network errors) are
// retried with backoff; any other response is returned to the caller for
// inspection.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
			return resp, nil
		}

		var retryAfter time.Duration
		if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
			retryAfterHeader := resp.Header().Get("Retry-After")
			if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
	}
	return nil, fmt.Errorf("request failed after %d attempts with status %s", maxRetries, resp.Status())
}
