// Package clobsession wraps a session's CLOB-facing client with the
// normalization and safety checks that apply to every order placed through
// it: it never holds a private key, and every signed order is checked and
// re-encoded into canonical wire shape before it is forwarded.
package clobsession

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/opipolix/gateway/internal/ports"
)

// maxSafeJSONInt bounds salt so the CLOB's JSON payload round-trips through
// any JS-number-based client without losing precision.
const maxSafeJSONInt = 9_007_199_254_740_991

// Signer identifies the session's wallet without ever being able to produce
// a signature. It exists to make the "never holds a private key" invariant
// a type, not just a convention: any code path that reaches for a signing
// capability on a session fails loudly instead of finding one.
type Signer struct {
	Address string
	ChainID int64
}

// Sign always fails — a Session is a forwarding facade, never a signer.
func (s Signer) Sign([]byte) ([]byte, error) {
	return nil, domain.InternalError(errSignerCannotSign)
}

var errSignerCannotSign = errors.New("session signer cannot sign messages")

// Session wraps a ports.CLOBSession, normalizing every signed order before
// it is forwarded and tracking the wallet identity that may never sign on
// the server's behalf.
type Session struct {
	inner  ports.CLOBSession
	signer Signer
}

// New builds a Session around inner, identified by signer.
func New(inner ports.CLOBSession, signer Signer) *Session {
	return &Session{inner: inner, signer: signer}
}

// Signer returns the session's non-signing identity marker.
func (s *Session) Signer() Signer { return s.signer }

// PostSignedOrder normalizes order and forwards it.
func (s *Session) PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (domain.OrderResult, error) {
	normalized, err := NormalizeSignedOrder(order)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return s.inner.PostSignedOrder(ctx, normalized, orderType)
}

func (s *Session) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	return s.inner.GetOrder(ctx, orderID)
}

func (s *Session) GetOpenOrders(ctx context.Context) ([]map[string]any, error) {
	return s.inner.GetOpenOrders(ctx)
}

func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	return s.inner.CancelOrder(ctx, orderID)
}

func (s *Session) CancelAll(ctx context.Context) error {
	return s.inner.CancelAll(ctx)
}

func (s *Session) GetBalanceAllowance(ctx context.Context, assetType, tokenID string) (map[string]any, error) {
	return s.inner.GetBalanceAllowance(ctx, assetType, tokenID)
}

// NormalizeSignedOrder re-encodes a signed order into canonical wire shape:
// checksummed addresses, decimal-string integer fields parsed from either
// hex or decimal input, and a BUY/SELL side normalized from either string or
// 0/1 form. It rejects a salt outside the JSON-safe integer range.
func NormalizeSignedOrder(order domain.SignedOrder) (domain.SignedOrder, error) {
	if strings.TrimSpace(order.Signature) == "" {
		return domain.SignedOrder{}, domain.ValidationFailed("signature is required")
	}

	salt, err := parseIntField(order.Salt, "salt")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	if salt.Sign() < 0 || salt.Cmp(big.NewInt(maxSafeJSONInt)) > 0 {
		return domain.SignedOrder{}, domain.ValidationFailed(
			"salt must be in [0, %d] for CLOB JSON payload compatibility", maxSafeJSONInt,
		)
	}

	maker, err := normalizeAddress(order.Maker, "maker")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	signer, err := normalizeAddress(order.Signer, "signer")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	taker, err := normalizeAddress(order.Taker, "taker")
	if err != nil {
		return domain.SignedOrder{}, err
	}

	tokenID, err := parseIntField(order.TokenID, "tokenId")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	makerAmount, err := parseIntField(order.MakerAmount, "makerAmount")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	takerAmount, err := parseIntField(order.TakerAmount, "takerAmount")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	expiration, err := parseIntField(order.Expiration, "expiration")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	nonce, err := parseIntField(order.Nonce, "nonce")
	if err != nil {
		return domain.SignedOrder{}, err
	}
	feeRateBps, err := parseIntField(order.FeeRateBps, "feeRateBps")
	if err != nil {
		return domain.SignedOrder{}, err
	}

	side, err := normalizeSide(order.Side)
	if err != nil {
		return domain.SignedOrder{}, err
	}

	return domain.SignedOrder{
		Salt:          salt.String(),
		Maker:         maker,
		Signer:        signer,
		Taker:         taker,
		TokenID:       tokenID.String(),
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    expiration.String(),
		Nonce:         nonce.String(),
		FeeRateBps:    feeRateBps.String(),
		Side:          side,
		SignatureType: order.SignatureType,
		Signature:     order.Signature,
	}, nil
}

func parseIntField(s, field string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, domain.ValidationFailed("%s must be integer-like, got %q", field, s)
	}
	return n, nil
}

func normalizeAddress(addr, field string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", domain.ValidationFailed("%s is not a valid address: %q", field, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

func normalizeSide(side string) (string, error) {
	text := strings.ToUpper(strings.TrimSpace(side))
	if text == "BUY" || text == "SELL" {
		return text, nil
	}
	n, err := parseIntField(side, "side")
	if err != nil {
		return "", domain.ValidationFailed("side must be BUY/SELL or 0/1, got %q", side)
	}
	switch n.Int64() {
	case 0:
		return "BUY", nil
	case 1:
		return "SELL", nil
	default:
		return "", domain.ValidationFailed("side must be BUY/SELL or 0/1, got %q", side)
	}
}
