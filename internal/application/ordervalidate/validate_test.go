package ordervalidate_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/opipolix/gateway/internal/application/ordervalidate"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = mustHexKey("01" + repeat("00", 31))

func mustHexKey(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

// signOrder reproduces the EIP-712 Order digest computation independently,
// to confirm RecoverOrderSigner recovers a round-tripped signature.
func signOrder(t *testing.T, order domain.SignedOrder, chainID int64, verifyingContract common.Address) string {
	t.Helper()
	privKey, err := crypto.ToECDSA(testKey)
	require.NoError(t, err)

	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	orderTypeHash := crypto.Keccak256Hash([]byte(
		"Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)",
	))

	var domainBuf []byte
	domainBuf = append(domainBuf, domainTypeHash.Bytes()...)
	domainBuf = append(domainBuf, crypto.Keccak256Hash([]byte("Polymarket CTF Exchange")).Bytes()...)
	domainBuf = append(domainBuf, crypto.Keccak256Hash([]byte("1")).Bytes()...)
	domainBuf = append(domainBuf, common.LeftPadBytes(bigIntBytes(chainID), 32)...)
	domainBuf = append(domainBuf, common.LeftPadBytes(verifyingContract.Bytes(), 32)...)
	domainSep := crypto.Keccak256Hash(domainBuf)

	side := byte(0)
	if order.Side == "SELL" {
		side = 1
	}

	var structBuf []byte
	structBuf = append(structBuf, orderTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.Salt), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(common.HexToAddress(order.Maker).Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(common.HexToAddress(order.Signer).Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(common.HexToAddress(order.Taker).Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.TokenID), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.MakerAmount), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.TakerAmount), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.Expiration), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.Nonce), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(bigIntBytesDecimal(order.FeeRateBps), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes([]byte{side}, 32)...)
	structBuf = append(structBuf, common.LeftPadBytes([]byte{byte(order.SignatureType)}, 32)...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, domainSep.Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	digest := crypto.Keccak256Hash(rawBuf)

	sig, err := crypto.Sign(digest.Bytes(), privKey)
	require.NoError(t, err)
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func bigIntBytes(v int64) []byte {
	if v == 0 {
		return []byte{0}
	}
	b := []byte{}
	for v > 0 {
		b = append([]byte{byte(v & 0xff)}, b...)
		v >>= 8
	}
	return b
}

func bigIntBytesDecimal(s string) []byte {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer: " + s)
	}
	return n.Bytes()
}

func TestRecoverOrderSigner_RoundTripsAgainstRegularExchange(t *testing.T) {
	privKey, err := crypto.ToECDSA(testKey)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(privKey.PublicKey)

	regularAddr, ok := ordervalidate.ExchangeAddress(137, false)
	require.True(t, ok)

	order := domain.SignedOrder{
		Salt:          "12345",
		Maker:         address.Hex(),
		Signer:        address.Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "987654321",
		MakerAmount:   "1000000",
		TakerAmount:   "2000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          "BUY",
		SignatureType: 0,
	}
	order.Signature = signOrder(t, order, 137, common.HexToAddress(regularAddr))

	candidates, err := ordervalidate.RecoverOrderSigner(order, 137, ordervalidate.RecoverAddress)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), candidates.Regular)

	require.NoError(t, ordervalidate.ConfirmSignerMatches(candidates, address.Hex()))
}

func TestConfirmSignerMatches_FailsWhenNeitherRecovers(t *testing.T) {
	candidates := ordervalidate.RecoveredSigners{Regular: "0xaaa", NegRisk: "0xbbb"}
	err := ordervalidate.ConfirmSignerMatches(candidates, "0xccc")
	assert.Error(t, err)
}

func TestValidateAgainstSession(t *testing.T) {
	order := domain.SignedOrder{
		Signer:        "0xAAA0000000000000000000000000000000000A",
		Maker:         "0xBBB0000000000000000000000000000000000B",
		SignatureType: 2,
		TokenID:       "111",
		Side:          "SELL",
	}

	err := ordervalidate.ValidateAgainstSession(order, "0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b", 2, "111", "SELL")
	require.NoError(t, err)

	err = ordervalidate.ValidateAgainstSession(order, "0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b", 2, "111", "BUY")
	assert.Error(t, err, "side mismatch must be rejected")

	err = ordervalidate.ValidateAgainstSession(order, "0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b", 2, "222", "SELL")
	assert.Error(t, err, "tokenId mismatch must be rejected")
}
