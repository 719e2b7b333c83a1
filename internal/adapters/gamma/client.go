// Package gamma looks up individual markets from Polymarket's Gamma
// metadata API, used as the fallback source for token IDs when a search hit
// from the wallet-metadata aggregator doesn't carry its own.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://gamma-api.polymarket.com"

	// Gamma /markets: 300/10s → 60% headroom → 18/s, matching the teacher's
	// adapter.
	gammaRatePerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is a rate-limited, retrying HTTP client for Gamma market lookups.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient builds a Client. An empty base falls back to the production
// Gamma host.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(gammaRatePerSec, 10),
	}
}

// MarketByID returns the raw Gamma market blob for a Gamma market ID.
func (c *Client) MarketByID(ctx context.Context, marketID string) (map[string]any, error) {
	u := fmt.Sprintf("%s/markets?id=%s", c.base, url.QueryEscape(marketID))

	var resp []map[string]any
	if err := c.doWithRetry(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("gamma: market by id: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	return resp[0], nil
}

func (c *Client) doWithRetry(ctx context.Context, rawURL string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
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
