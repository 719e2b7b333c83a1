package domain

// SignedOrder is a client-signed Polymarket CTF exchange order. Once
// re-validated it is normalized (clobsession.NormalizeSignedOrder) before it
// is forwarded to the CLOB. Integer fields are carried as strings; input may
// be decimal or 0x-hex, and normalization re-encodes them as the decimal
// strings the CLOB expects.
type SignedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// LimitOrderRequest is the body of POST /api/order/limit.
type LimitOrderRequest struct {
	TokenID         string       `json:"token_id"`
	Side            string       `json:"side"`
	Outcome         string       `json:"outcome,omitempty"`
	Price           float64      `json:"price"`
	SizeUSDC        *float64     `json:"size_usdc,omitempty"`
	SizeTokens      *float64     `json:"size_tokens,omitempty"`
	OrderType       string       `json:"order_type"`
	IdempotencyKey  string       `json:"idempotency_key,omitempty"`
	SignedOrder     SignedOrder  `json:"signed_order"`
}

// CancelOrderRequest is the body of POST /api/order/cancel.
type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

// OrderResult is the normalized response returned to callers after placing
// or cancelling an order.
type OrderResult struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	TakingAmount string `json:"taking_amount,omitempty"`
	MakingAmount string `json:"making_amount,omitempty"`
}
