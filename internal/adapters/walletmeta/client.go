// Package walletmeta talks to the off-chain wallet/market metadata
// aggregator used to discover a wallet's proxy address, balance summary, and
// to power free-text market search.
package walletmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.domeapi.io/v1"

	requestsPerSec = 5
	burst          = 10

	requestTimeout = 10 * time.Second
)

// Client is a rate-limited HTTP client for the wallet-metadata aggregator.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
}

// NewClient builds a Client. An empty base falls back to the production
// aggregator host.
func NewClient(base, apiKey string) *Client {
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		base:    strings.TrimRight(base, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(requestsPerSec, burst),
	}
}

// GetWallet returns the raw wallet metadata blob for an EOA, to be walked by
// the trading-context resolver.
func (c *Client) GetWallet(ctx context.Context, eoaAddress string) (map[string]any, error) {
	u := fmt.Sprintf("%s/polymarket/wallet?eoa=%s", c.base, url.QueryEscape(eoaAddress))

	var out map[string]any
	if err := c.get(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("walletmeta: get wallet: %w", err)
	}
	return out, nil
}

// SearchMarkets returns transformed market search hits for a free-text
// query. Results are left close to the aggregator's own shape — market_id,
// title, question, liquidity, opportunity_score, clob_token_yes/no,
// dome_raw — so the resolver's extraction logic can operate on them the same
// way whether the hit came straight from the aggregator or was backfilled
// from Gamma.
func (c *Client) SearchMarkets(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 20
	}

	u := fmt.Sprintf("%s/polymarket/markets?search=%s&status=open&limit=%d",
		c.base, url.QueryEscape(query), limit)

	var resp struct {
		Markets []map[string]any `json:"markets"`
	}
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("walletmeta: search markets: %w", err)
	}

	out := make([]map[string]any, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, transformMarket(m))
	}
	return out, nil
}

func transformMarket(m map[string]any) map[string]any {
	marketID := firstString(m, "market_id", "id", "market_slug")
	title := firstString(m, "title", "question")
	if title == "" {
		title = "Untitled"
	}
	question := firstString(m, "question")
	if question == "" {
		question = title
	}

	volumeTotal := floatOf(m["volume_total"])
	volumeWeek := floatOf(m["volume_1_week"])
	volumeMonth := floatOf(m["volume_1_month"])
	var volume24h float64
	if volumeWeek > 0 {
		volume24h = volumeWeek / 7.0
	} else {
		volume24h = volumeMonth / 30.0
	}

	liquidity := floatOf(m["liquidity"])
	if liquidity <= 0 {
		liquidity = volumeTotal * 0.3
	}

	sideA, _ := m["side_a"].(map[string]any)
	sideB, _ := m["side_b"].(map[string]any)

	yesPrice := floatOfDefault(m["current_yes_price"], floatOfDefault(m["yes_price"], 0.5))

	return map[string]any{
		"market_id":         marketID,
		"market_slug":       firstString(m, "market_slug"),
		"title":             title,
		"question":          question,
		"liquidity":         liquidity,
		"opportunity_score": opportunityScore(liquidity, yesPrice, volume24h),
		"yes_label":         firstPresent(m, "yes_label", "yes_outcome"),
		"no_label":          firstPresent(m, "no_label", "no_outcome"),
		"dome_raw": map[string]any{
			"condition_id":   m["condition_id"],
			"side_a_id":      sideA["id"],
			"side_b_id":      sideB["id"],
			"side_a_label":   firstString(sideA, "label"),
			"side_b_label":   firstString(sideB, "label"),
		},
		"clob_token_yes": m["clob_token_yes"],
		"clob_token_no":  m["clob_token_no"],
		"yes_token_id":   m["yes_token_id"],
		"no_token_id":    m["no_token_id"],
	}
}

func opportunityScore(liquidity, yesPrice, volume24h float64) float64 {
	liquidityScore := math.Min(liquidity/10_000.0, 1.0)
	priceUncertainty := 1.0 - math.Abs(0.5-yesPrice)*2.0
	volumeScore := math.Min(volume24h/5_000.0, 1.0)
	return math.Round((liquidityScore*0.4+priceUncertainty*0.3+volumeScore*0.3)*1000) / 1000
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func floatOf(v any) float64 {
	return floatOfDefault(v, 0)
}

func floatOfDefault(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return json.Unmarshal(body, out)
}
