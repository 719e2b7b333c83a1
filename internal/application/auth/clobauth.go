package auth

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/opipolix/gateway/internal/domain"
)

const (
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"
)

// EIP-712 type hashes, computed once at package init like the teacher's
// equivalent in the signing client.
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

func clobAuthDomainSeparator(chainID int64) common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

func clobAuthDigest(address common.Address, timestamp string, nonce int64, chainID int64) common.Hash {
	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator(chainID).Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	return crypto.Keccak256Hash(rawBuf)
}

// RecoverClobAuthSigner verifies the ClobAuth EIP-712 signature a client
// submits alongside /auth/verify and returns the recovered address. It
// fails closed if the recovered signer does not match expectedAddress.
func RecoverClobAuthSigner(expectedAddress, signature string, timestamp int64, nonce int64, chainID int64) (common.Address, error) {
	addr := common.HexToAddress(expectedAddress)
	digest := clobAuthDigest(addr, strconv.FormatInt(timestamp, 10), nonce, chainID)

	recovered, err := recoverSigner(digest, signature)
	if err != nil {
		return common.Address{}, domain.AuthInvalid("invalid CLOB auth signature: %v", err)
	}
	if recovered != addr {
		return common.Address{}, domain.AuthInvalid("CLOB auth signer mismatch")
	}
	return recovered, nil
}
