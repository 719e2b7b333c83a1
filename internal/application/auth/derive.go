package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opipolix/gateway/internal/domain"
)

type credsPayload struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// CredentialDeriver derives L2 CLOB API credentials from an L1 EIP-712
// signature, trying POST /auth/api-key first and falling back to
// GET /auth/derive-api-key, mirroring the upstream CLOB's own fallback
// contract.
type CredentialDeriver struct {
	http     *http.Client
	clobHost string
}

// NewCredentialDeriver builds a deriver hitting clobHost with a 10s timeout
// per call, matching every other outbound adapter in the gateway.
func NewCredentialDeriver(clobHost string) *CredentialDeriver {
	return &CredentialDeriver{
		http:     &http.Client{Timeout: 10 * time.Second},
		clobHost: clobHost,
	}
}

// Derive exchanges an L1 ClobAuth signature for L2 API credentials.
func (d *CredentialDeriver) Derive(ctx context.Context, address, signature string, timestamp, nonce int64) (domain.ClobCreds, error) {
	headers := map[string]string{
		"POLY_ADDRESS":   address,
		"POLY_SIGNATURE": signature,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}

	payload, createStatus, err := d.call(ctx, http.MethodPost, "/auth/api-key", headers)
	if err != nil || createStatus >= 300 {
		var deriveStatus int
		payload, deriveStatus, err = d.call(ctx, http.MethodGet, "/auth/derive-api-key", headers)
		if err != nil || deriveStatus >= 300 {
			return domain.ClobCreds{}, domain.CredentialDerivationFailed(
				fmt.Errorf("create=%d derive=%d: %w", createStatus, deriveStatus, err))
		}
	}

	var creds credsPayload
	if err := json.Unmarshal(payload, &creds); err != nil {
		return domain.ClobCreds{}, domain.CredentialDerivationFailed(err)
	}
	if creds.APIKey == "" || creds.Secret == "" || creds.Passphrase == "" {
		return domain.ClobCreds{}, domain.CredentialPayloadInvalid("CLOB credential payload missing fields")
	}

	return domain.ClobCreds{
		APIKey:     creds.APIKey,
		APISecret:  creds.Secret,
		Passphrase: creds.Passphrase,
	}, nil
}

func (d *CredentialDeriver) call(ctx context.Context, method, path string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.clobHost+path, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}
