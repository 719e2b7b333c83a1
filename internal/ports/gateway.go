package ports

import (
	"context"

	"github.com/opipolix/gateway/internal/domain"
)

// CLOBClient is the public, unauthenticated surface of the CLOB REST API
// used to price and validate orders before they are placed.
type CLOBClient interface {
	// OrderBook returns the current order book for a token.
	OrderBook(ctx context.Context, tokenID string) (domain.OrderBookSnapshot, error)

	// TickSize returns the minimum price increment for a token's market.
	TickSize(ctx context.Context, tokenID string) (float64, error)

	// IsNegRisk reports whether tokenID's market uses the neg-risk adapter,
	// which determines which verifying contract its orders sign against.
	IsNegRisk(ctx context.Context, tokenID string) (bool, error)

	// FeeRateBps returns the maker fee rate, in basis points, for a token.
	FeeRateBps(ctx context.Context, tokenID string) (int, error)
}

// CLOBSession is a session-scoped, L2-authenticated facade over the CLOB.
// Implementations never hold a private key: orders arrive pre-signed by the
// client and are only forwarded.
type CLOBSession interface {
	// PostSignedOrder forwards a pre-signed order to the CLOB.
	PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (domain.OrderResult, error)

	// GetOrder returns the CLOB's current view of a previously placed order.
	GetOrder(ctx context.Context, orderID string) (map[string]any, error)

	// GetOpenOrders returns all open orders for the session's funder address.
	GetOpenOrders(ctx context.Context) ([]map[string]any, error)

	// CancelOrder cancels a single resting order.
	CancelOrder(ctx context.Context, orderID string) error

	// CancelAll cancels every open order for the session's funder address.
	CancelAll(ctx context.Context) error

	// GetBalanceAllowance returns the balance/allowance the CLOB has on file
	// for the given asset type ("COLLATERAL" or "CONDITIONAL") and token.
	GetBalanceAllowance(ctx context.Context, assetType, tokenID string) (map[string]any, error)
}

// WalletMetadata resolves off-chain/aggregator information about a wallet:
// its proxy/safe address, balance summary, and market search.
type WalletMetadata interface {
	// GetWallet returns the raw metadata blob for an EOA, to be walked by
	// the trading-context resolver.
	GetWallet(ctx context.Context, eoaAddress string) (map[string]any, error)

	// SearchMarkets returns raw market search hits for a free-text query, left
	// unparsed so the resolver can apply its own token-id/label extraction.
	SearchMarkets(ctx context.Context, query string, limit int) ([]map[string]any, error)
}

// GammaMarkets is the fallback metadata source used when WalletMetadata
// search does not resolve a market's token IDs.
type GammaMarkets interface {
	// MarketByID returns the raw Gamma market blob for a Gamma market ID.
	MarketByID(ctx context.Context, marketID string) (map[string]any, error)
}
