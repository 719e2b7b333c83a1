package walletmeta_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opipolix/gateway/internal/adapters/walletmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWallet_PassesEOAQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/polymarket/wallet", r.URL.Path)
		assert.Equal(t, "0xabc", r.URL.Query().Get("eoa"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"proxy_wallet":"0xdef","balances":{"available_usdc":10}}`))
	}))
	defer srv.Close()

	c := walletmeta.NewClient(srv.URL, "test-key")
	data, err := c.GetWallet(t.Context(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xdef", data["proxy_wallet"])
}

func TestSearchMarkets_TransformsAndScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markets":[{
			"market_id": "m1",
			"title": "Will it rain",
			"liquidity": 5000,
			"current_yes_price": 0.5,
			"volume_1_week": 700,
			"clob_token_yes": "tok_yes",
			"clob_token_no": "tok_no"
		}]}`))
	}))
	defer srv.Close()

	c := walletmeta.NewClient(srv.URL, "")
	results, err := c.SearchMarkets(t.Context(), "rain", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "m1", results[0]["market_id"])
	assert.Equal(t, "tok_yes", results[0]["clob_token_yes"])
	score, ok := results[0]["opportunity_score"].(float64)
	require.True(t, ok)
	assert.Greater(t, score, 0.0)
}

func TestSearchMarkets_DefaultsLimitWhenZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"markets":[]}`))
	}))
	defer srv.Close()

	c := walletmeta.NewClient(srv.URL, "")
	results, err := c.SearchMarkets(t.Context(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
