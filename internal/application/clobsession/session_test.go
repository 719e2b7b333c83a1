package clobsession_test

import (
	"context"
	"testing"

	"github.com/opipolix/gateway/internal/application/clobsession"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSignedOrder_ChecksumsAddressesAndSide(t *testing.T) {
	order := domain.SignedOrder{
		Salt:        "0x1",
		Maker:       "0x2222222222222222222222222222222222222222",
		Signer:      "0x2222222222222222222222222222222222222222",
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "0x1a",
		MakerAmount: "1000",
		TakerAmount: "2000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        "1",
		Signature:   "0xdead",
	}

	normalized, err := clobsession.NormalizeSignedOrder(order)
	require.NoError(t, err)
	assert.Equal(t, "1", normalized.Salt)
	assert.Equal(t, "26", normalized.TokenID)
	assert.Equal(t, "SELL", normalized.Side)
}

func TestNormalizeSignedOrder_RejectsOversizedSalt(t *testing.T) {
	order := domain.SignedOrder{
		Salt:        "99999999999999999999",
		Maker:       "0x2222222222222222222222222222222222222222",
		Signer:      "0x2222222222222222222222222222222222222222",
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "1",
		MakerAmount: "1",
		TakerAmount: "1",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        "BUY",
		Signature:   "0xdead",
	}
	_, err := clobsession.NormalizeSignedOrder(order)
	assert.Error(t, err)
}

func TestNormalizeSignedOrder_RejectsMissingSignature(t *testing.T) {
	_, err := clobsession.NormalizeSignedOrder(domain.SignedOrder{Side: "BUY"})
	assert.Error(t, err)
}

type fakeCLOBSession struct {
	lastOrder domain.SignedOrder
}

func (f *fakeCLOBSession) PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (domain.OrderResult, error) {
	f.lastOrder = order
	return domain.OrderResult{OrderID: "ord1", Status: "live"}, nil
}
func (f *fakeCLOBSession) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	return nil, nil
}
func (f *fakeCLOBSession) GetOpenOrders(ctx context.Context) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeCLOBSession) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeCLOBSession) CancelAll(ctx context.Context) error                  { return nil }
func (f *fakeCLOBSession) GetBalanceAllowance(ctx context.Context, assetType, tokenID string) (map[string]any, error) {
	return nil, nil
}

func TestSession_PostSignedOrder_NormalizesBeforeForwarding(t *testing.T) {
	inner := &fakeCLOBSession{}
	sess := clobsession.New(inner, clobsession.Signer{Address: "0xabc", ChainID: 137})

	order := domain.SignedOrder{
		Salt: "0x1", Maker: "0x2222222222222222222222222222222222222222",
		Signer: "0x2222222222222222222222222222222222222222",
		Taker:  "0x0000000000000000000000000000000000000000",
		TokenID: "1", MakerAmount: "1", TakerAmount: "1",
		Expiration: "0", Nonce: "0", FeeRateBps: "0", Side: "0",
		Signature: "0xdead",
	}

	result, err := sess.PostSignedOrder(t.Context(), order, "GTC")
	require.NoError(t, err)
	assert.Equal(t, "ord1", result.OrderID)
	assert.Equal(t, "BUY", inner.lastOrder.Side)
	assert.Equal(t, "1", inner.lastOrder.Salt)
}

func TestSigner_CannotSign(t *testing.T) {
	s := clobsession.Signer{Address: "0xabc", ChainID: 137}
	_, err := s.Sign([]byte("anything"))
	assert.Error(t, err)
}
