// Package clob talks to the Polymarket CLOB's REST surface. Client covers the
// public market-data calls (order books, tick size, neg-risk flag, and fee
// rate), none of which require authentication; Session covers the
// L2-authenticated, session-scoped order and balance calls.
package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/opipolix/gateway/internal/domain"
)

const (
	defaultBase = "https://clob.polymarket.com"

	// Matched against the documented CLOB rate limits at roughly 60%
	// headroom, the same ratio the teacher's adapter uses.
	booksRatePerSec   = 30
	generalRatePerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is a rate-limited, retrying HTTP client for the CLOB's public
// market-data endpoints.
type Client struct {
	http           *http.Client
	base           string
	booksLimiter   *rate.Limiter
	generalLimiter *rate.Limiter
}

// NewClient builds a Client. An empty base falls back to the production
// CLOB host.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:           &http.Client{Timeout: 10 * time.Second},
		base:           base,
		booksLimiter:   rate.NewLimiter(booksRatePerSec, 5),
		generalLimiter: rate.NewLimiter(generalRatePerSec, 50),
	}
}

type orderSummary struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBookResponse struct {
	Bids []orderSummary `json:"bids"`
	Asks []orderSummary `json:"asks"`
}

// OrderBook returns the current best-bid/best-ask snapshot for a token.
func (c *Client) OrderBook(ctx context.Context, tokenID string) (domain.OrderBookSnapshot, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", c.base, tokenID)
	var resp orderBookResponse
	if err := c.get(ctx, c.booksLimiter, url, &resp); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("clob: order book: %w", err)
	}

	snap := domain.OrderBookSnapshot{TokenID: tokenID}
	if len(resp.Bids) > 0 {
		snap.BestBid, _ = strconv.ParseFloat(resp.Bids[0].Price, 64)
	}
	if len(resp.Asks) > 0 {
		snap.BestAsk, _ = strconv.ParseFloat(resp.Asks[0].Price, 64)
	}
	return snap, nil
}

type tickSizeResponse struct {
	MinimumTickSize string `json:"minimum_tick_size"`
}

// TickSize returns the minimum price increment for a token's market.
func (c *Client) TickSize(ctx context.Context, tokenID string) (float64, error) {
	url := fmt.Sprintf("%s/tick-size?token_id=%s", c.base, tokenID)
	var resp tickSizeResponse
	if err := c.get(ctx, c.generalLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("clob: tick size: %w", err)
	}
	tick, err := strconv.ParseFloat(resp.MinimumTickSize, 64)
	if err != nil {
		return 0, fmt.Errorf("clob: parse tick size %q: %w", resp.MinimumTickSize, err)
	}
	return tick, nil
}

type negRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// IsNegRisk reports whether tokenID's market uses the neg-risk adapter.
func (c *Client) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", c.base, tokenID)
	var resp negRiskResponse
	if err := c.get(ctx, c.generalLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("clob: neg-risk: %w", err)
	}
	return resp.NegRisk, nil
}

type feeRateResponse struct {
	FeeRateBps string `json:"fee_rate_bps"`
}

// FeeRateBps returns the maker fee rate, in basis points, for a token.
func (c *Client) FeeRateBps(ctx context.Context, tokenID string) (int, error) {
	url := fmt.Sprintf("%s/fee-rate-bps?token_id=%s", c.base, tokenID)
	var resp feeRateResponse
	if err := c.get(ctx, c.generalLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("clob: fee rate: %w", err)
	}
	if resp.FeeRateBps == "" {
		return 0, nil
	}
	bps, err := strconv.Atoi(resp.FeeRateBps)
	if err != nil {
		return 0, fmt.Errorf("clob: parse fee rate %q: %w", resp.FeeRateBps, err)
	}
	return bps, nil
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("clob: rate limited", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
