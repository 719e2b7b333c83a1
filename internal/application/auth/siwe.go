package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/opipolix/gateway/internal/domain"
)

// BuildSIWEMessage renders the challenge text a wallet must personal_sign to
// prove control of address. now is injected so callers control the
// "Issued At" timestamp deterministically in tests.
func BuildSIWEMessage(address, nonce string, chainID int64, now time.Time) string {
	issuedAt := now.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05") + "Z"
	return strings.Join([]string{
		"OpiPoliX Web Experiment",
		"Sign this message to authenticate.",
		"",
		fmt.Sprintf("Address: %s", address),
		fmt.Sprintf("Chain ID: %d", chainID),
		fmt.Sprintf("Nonce: %s", nonce),
		fmt.Sprintf("Issued At: %s", issuedAt),
	}, "\n")
}

// RecoverPersonalSigner recovers the address that personal_signed message,
// failing if it does not match expectedAddress.
func RecoverPersonalSigner(message, signature, expectedAddress string) error {
	recovered, err := recoverSigner(personalSignHash(message), signature)
	if err != nil {
		return domain.AuthInvalid("invalid signature: %v", err)
	}
	if !strings.EqualFold(recovered.Hex(), expectedAddress) {
		return domain.AuthInvalid("signer mismatch: expected %s, recovered %s", expectedAddress, recovered.Hex())
	}
	return nil
}

// ValidateAddress checks address is a syntactically valid EVM address.
func ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return domain.ValidationFailed("invalid EVM address: %q", address)
	}
	return nil
}
