// Package ordervalidate re-validates a client-signed Polymarket order against
// the authenticated session before the gateway forwards it, and recomputes
// its EIP-712 digest against both exchange contracts to confirm the
// signature actually belongs to the session's wallet.
package ordervalidate

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/opipolix/gateway/internal/domain"
)

// CTF Exchange verifying contracts per chain (Polygon mainnet and Amoy
// testnet), regular and neg-risk. go-order-utils'
// pkg/config.GetContracts resolves the same pair internally for order
// building; these are reproduced here for direct EIP-712 digest
// recomputation (see DESIGN.md for why the lookup is not delegated to that
// package).
var exchangeAddresses = map[int64]struct {
	Regular string
	NegRisk string
}{
	137: {
		Regular: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
		NegRisk: "0xC5d563A36AE78145C45a50134d48A1215220f80a",
	},
	80002: { // Amoy testnet
		Regular: "0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40",
		NegRisk: "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296",
	},
}

// ExchangeAddress returns the verifying contract address for chainID and
// negRisk, or ("", false) if the chain is unknown.
func ExchangeAddress(chainID int64, negRisk bool) (string, bool) {
	cfg, ok := exchangeAddresses[chainID]
	if !ok {
		return "", false
	}
	if negRisk {
		return cfg.NegRisk, true
	}
	return cfg.Regular, true
}

var (
	orderDomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)",
	))
)

const (
	orderDomainName    = "Polymarket CTF Exchange"
	orderDomainVersion = "1"
)

func orderDomainSeparator(chainID int64, verifyingContract common.Address) common.Hash {
	var buf []byte
	buf = append(buf, orderDomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(orderDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(orderDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(verifyingContract.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// orderDigest recomputes the EIP-712 signing digest for order against the
// given verifying contract.
func orderDigest(order domain.SignedOrder, chainID int64, verifyingContract common.Address) (common.Hash, error) {
	salt, err := parseBigInt(order.Salt)
	if err != nil {
		return common.Hash{}, err
	}
	tokenID, err := parseBigInt(order.TokenID)
	if err != nil {
		return common.Hash{}, err
	}
	makerAmount, err := parseBigInt(order.MakerAmount)
	if err != nil {
		return common.Hash{}, err
	}
	takerAmount, err := parseBigInt(order.TakerAmount)
	if err != nil {
		return common.Hash{}, err
	}
	expiration, err := parseBigInt(order.Expiration)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := parseBigInt(order.Nonce)
	if err != nil {
		return common.Hash{}, err
	}
	feeRateBps, err := parseBigInt(order.FeeRateBps)
	if err != nil {
		return common.Hash{}, err
	}
	side, err := sideToUint8(order.Side)
	if err != nil {
		return common.Hash{}, err
	}

	var structBuf []byte
	structBuf = append(structBuf, orderTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(salt.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(common.HexToAddress(order.Maker).Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(common.HexToAddress(order.Signer).Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(common.HexToAddress(order.Taker).Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(tokenID.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(makerAmount.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(takerAmount.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(expiration.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(nonce.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes(feeRateBps.Bytes(), 32)...)
	structBuf = append(structBuf, common.LeftPadBytes([]byte{side}, 32)...)
	structBuf = append(structBuf, common.LeftPadBytes([]byte{byte(order.SignatureType)}, 32)...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, orderDomainSeparator(chainID, verifyingContract).Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	return crypto.Keccak256Hash(rawBuf), nil
}

func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, domain.ValidationFailed("invalid integer field: %q", s)
	}
	return n, nil
}

func sideToUint8(side string) (byte, error) {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "BUY", "0":
		return 0, nil
	case "SELL", "1":
		return 1, nil
	default:
		return 0, domain.ValidationFailed("side must be BUY/SELL or 0/1, got %q", side)
	}
}

// RecoveredSigners holds the address recovered under each exchange contract,
// either of which may be empty if recovery failed for that contract.
type RecoveredSigners struct {
	Regular string
	NegRisk string
}

// RecoverOrderSigner recomputes order's EIP-712 digest against both the
// regular and neg-risk exchange contracts for chainID and recovers the
// signer under each. A failure to recover under one contract does not
// prevent recovery under the other.
func RecoverOrderSigner(order domain.SignedOrder, chainID int64, recover func(digest common.Hash, signature string) (common.Address, error)) (RecoveredSigners, error) {
	var out RecoveredSigners

	regularAddr, ok := ExchangeAddress(chainID, false)
	if !ok {
		return out, domain.ValidationFailed("no exchange contract configured for chain %d", chainID)
	}
	negRiskAddr, _ := ExchangeAddress(chainID, true)

	if digest, err := orderDigest(order, chainID, common.HexToAddress(regularAddr)); err == nil {
		if addr, err := recover(digest, order.Signature); err == nil {
			out.Regular = addr.Hex()
		}
	}
	if negRiskAddr != "" {
		if digest, err := orderDigest(order, chainID, common.HexToAddress(negRiskAddr)); err == nil {
			if addr, err := recover(digest, order.Signature); err == nil {
				out.NegRisk = addr.Hex()
			}
		}
	}

	return out, nil
}

// ValidateAgainstSession checks that a signed order's signer, maker,
// signatureType, tokenId, and side match the authenticated session before
// any signature recovery is attempted.
func ValidateAgainstSession(order domain.SignedOrder, eoaAddress, funderAddress string, signatureType int, tokenID, expectedSide string) error {
	if !strings.EqualFold(order.Signer, eoaAddress) {
		return domain.OrderSignatureMismatch("signed order signer mismatch")
	}
	if !strings.EqualFold(order.Maker, funderAddress) {
		return domain.OrderSignatureMismatch("signed order maker mismatch")
	}
	if order.SignatureType != signatureType {
		return domain.OrderSignatureMismatch("signatureType mismatch")
	}
	if order.TokenID != tokenID {
		return domain.OrderSignatureMismatch("tokenId mismatch")
	}
	side, err := sideToUint8(order.Side)
	if err != nil {
		return err
	}
	expected, err := sideToUint8(expectedSide)
	if err != nil {
		return err
	}
	if side != expected {
		return domain.OrderSignatureMismatch("expected %s order", expectedSide)
	}
	return nil
}

// ConfirmSignerMatches fails unless one of the two recovered candidates
// matches eoaAddress, the core "either digest" invariant for order
// acceptance.
func ConfirmSignerMatches(candidates RecoveredSigners, eoaAddress string) error {
	if strings.EqualFold(candidates.Regular, eoaAddress) || strings.EqualFold(candidates.NegRisk, eoaAddress) {
		return nil
	}
	return domain.OrderSignatureMismatch(
		"order signature does not recover to authenticated EOA for either regular or neg-risk exchange contract",
	)
}

// RecoverAddress wraps go-ethereum's ECDSA recovery for a standard
// (r,s,v) 65-byte hex signature, normalizing the 27/28 "v" convention.
func RecoverAddress(digest common.Hash, signatureHex string) (common.Address, error) {
	sig, err := decodeSig(signatureHex)
	if err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func decodeSig(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, domain.ValidationFailed("invalid signature hex: %v", err)
	}
	if len(b) != 65 {
		return nil, domain.ValidationFailed("signature must be 65 bytes, got %d", len(b))
	}
	return b, nil
}
