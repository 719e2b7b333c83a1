package domain

import "time"

// NonceRecord is the SIWE challenge issued for an address, pending consumption.
type NonceRecord struct {
	Address   string
	Nonce     string
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ClobCreds are the L2 API credentials derived from a wallet's EIP-712 signature.
type ClobCreds struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// TradingContext is everything resolved about a wallet's on-chain trading
// setup: its proxy/safe wallet (if any) and headline balance figures, both
// discovered from an opaque WalletMetadata JSON blob.
type TradingContext struct {
	EOAAddress      string
	ProxyAddress    string
	SignatureType   int
	AvailableUSDC   float64
	TotalUSDC       float64
	ResolverWarning string
}

// FunderAddress returns the address that should fund orders: the proxy
// wallet when one was resolved, otherwise the EOA itself.
func (tc TradingContext) FunderAddress() string {
	if tc.ProxyAddress != "" {
		return tc.ProxyAddress
	}
	return tc.EOAAddress
}

// Session binds an authenticated wallet to derived CLOB credentials and its
// resolved trading context for the life of a server-side session token.
type Session struct {
	Token           string
	EOAAddress      string
	ClobCreds       ClobCreds
	TradingContext  TradingContext
	CreatedAt       time.Time
	ExpiresAt       time.Time
}
