package auth_test

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/opipolix/gateway/internal/application/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPersonal(t *testing.T, key []byte, message string) string {
	t.Helper()
	privKey, err := crypto.ToECDSA(key)
	require.NoError(t, err)

	prefixed := "\x19Ethereum Signed Message:\n" + itoa(len(message)) + message
	digest := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(digest.Bytes(), privKey)
	require.NoError(t, err)
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

var testKey = mustHexKey("01" + repeat("00", 31))

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func mustHexKey(h string) []byte {
	b, err := hex.DecodeString(h)
	if err != nil {
		panic(err)
	}
	return b
}

func TestBuildAndRecoverSIWEMessage(t *testing.T) {
	privKey, err := crypto.ToECDSA(testKey)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(privKey.PublicKey).Hex()

	msg := auth.BuildSIWEMessage(address, "deadbeef", 137, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sig := signPersonal(t, testKey, msg)

	assert.NoError(t, auth.RecoverPersonalSigner(msg, sig, address))
	assert.Error(t, auth.RecoverPersonalSigner(msg, sig, "0x0000000000000000000000000000000000000001"))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, auth.ValidateAddress("0x0000000000000000000000000000000000000001"))
	assert.Error(t, auth.ValidateAddress("not-an-address"))
}

func TestCredentialDeriver_CreateSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/api-key", r.URL.Path)
		w.Write([]byte(`{"apiKey":"k","secret":"s","passphrase":"p"}`))
	}))
	defer srv.Close()

	d := auth.NewCredentialDeriver(srv.URL)
	creds, err := d.Derive(context.Background(), "0xabc", "0xsig", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "k", creds.APIKey)
}

func TestCredentialDeriver_FallsBackToDerive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/api-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		w.Write([]byte(`{"apiKey":"k2","secret":"s2","passphrase":"p2"}`))
	}))
	defer srv.Close()

	d := auth.NewCredentialDeriver(srv.URL)
	creds, err := d.Derive(context.Background(), "0xabc", "0xsig", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "k2", creds.APIKey)
}

func TestCredentialDeriver_BothFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := auth.NewCredentialDeriver(srv.URL)
	_, err := d.Derive(context.Background(), "0xabc", "0xsig", 1, 0)
	assert.Error(t, err)
}
