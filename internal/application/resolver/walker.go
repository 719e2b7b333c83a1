// Package resolver walks the opaque JSON blob returned by the wallet
// metadata service to discover a wallet's proxy/safe address and headline
// USDC balance figures, and enriches free-text market search results with
// token IDs via a Gamma fallback lookup.
package resolver

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressRe = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

var proxyKeys = set(
	"proxy", "proxywallet", "proxy_wallet", "proxyaddress", "proxy_address",
	"safe", "safeaddress", "safe_address",
)

var availableBalanceKeys = set(
	"available", "available_balance", "available_usdc", "usdc_available",
	"free", "free_balance", "spendable", "buying_power", "buyingpower",
)

var totalBalanceKeys = set(
	"balance", "total", "total_balance", "total_usdc", "usdc_balance",
	"cash_balance", "collateral", "equity",
)

var usdcScopeKeys = set("usdc", "usd", "cash", "stablecoin", "stablecoins", "balances")

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func normalizeKey(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		cleaned := strings.TrimSpace(t)
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		cleaned = strings.TrimPrefix(cleaned, "$")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// findFirstNumeric performs a depth-first search for the first key (after
// normalization) present in keys, returning its numeric value.
func findFirstNumeric(obj any, keys map[string]struct{}) (float64, bool) {
	switch t := obj.(type) {
	case map[string]any:
		ks := sortedKeys(t)
		for _, k := range ks {
			if _, ok := keys[normalizeKeyString(k)]; ok {
				if f, ok := toFloat(t[k]); ok {
					return f, true
				}
			}
		}
		for _, k := range ks {
			if f, ok := findFirstNumeric(t[k], keys); ok {
				return f, true
			}
		}
	case []any:
		for _, item := range t {
			if f, ok := findFirstNumeric(item, keys); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func normalizeKeyString(k string) string {
	return normalizeKey(k)
}

// sortedKeys returns m's keys in lexical order, so the depth-first walkers
// below pick the same "first match" on every call regardless of Go's
// randomized map iteration order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findUSDCScope returns the first nested object keyed by one of the
// USDC-scope names, narrowing subsequent balance lookups to it.
func findUSDCScope(obj any) (any, bool) {
	switch t := obj.(type) {
	case map[string]any:
		ks := sortedKeys(t)
		for _, k := range ks {
			if _, ok := usdcScopeKeys[normalizeKeyString(k)]; ok {
				return t[k], true
			}
		}
		for _, k := range ks {
			if nested, ok := findUSDCScope(t[k]); ok {
				return nested, true
			}
		}
	case []any:
		for _, item := range t {
			if nested, ok := findUSDCScope(item); ok {
				return nested, true
			}
		}
	}
	return nil, false
}

// walletSummary holds the balance figures extracted from a wallet blob.
type walletSummary struct {
	AvailableUSDC float64
	TotalUSDC     float64
	HasAvailable  bool
	HasTotal      bool
}

func extractWalletSummary(walletData any) walletSummary {
	var out walletSummary

	scope, hasScope := findUSDCScope(walletData)
	searchTarget := walletData
	if hasScope {
		searchTarget = scope
	}

	if avail, ok := findFirstNumeric(searchTarget, availableBalanceKeys); ok {
		out.AvailableUSDC, out.HasAvailable = round6(avail), true
	}
	if total, ok := findFirstNumeric(searchTarget, totalBalanceKeys); ok {
		out.TotalUSDC, out.HasTotal = round6(total), true
	}

	if !out.HasAvailable {
		if avail, ok := findFirstNumeric(walletData, availableBalanceKeys); ok {
			out.AvailableUSDC, out.HasAvailable = round6(avail), true
		}
	}
	if !out.HasTotal {
		if total, ok := findFirstNumeric(walletData, totalBalanceKeys); ok {
			out.TotalUSDC, out.HasTotal = round6(total), true
		}
	}

	return out
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

func normalizeAddr(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return s, true
	}
	if match := addressRe.FindString(s); match != "" {
		return match, true
	}
	return "", false
}

// findProxyInObj performs a depth-first search for a key matching the
// proxy/safe key set whose value is a distinct address from eoaLower.
func findProxyInObj(obj any, eoaLower string) (string, bool) {
	switch t := obj.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			v := t[k]
			keyNorm := normalizeKeyString(k)
			if addr, ok := normalizeAddr(v); ok {
				if _, isProxyKey := proxyKeys[keyNorm]; isProxyKey && !strings.EqualFold(addr, eoaLower) {
					return addr, true
				}
			}
			if nested, ok := findProxyInObj(v, eoaLower); ok {
				return nested, true
			}
		}
	case []any:
		for _, item := range t {
			if nested, ok := findProxyInObj(item, eoaLower); ok {
				return nested, true
			}
		}
	}
	return "", false
}

// findAnyAltAddress is the fallback when no key matches the proxy key set:
// the first address anywhere in the blob that differs from the EOA.
func findAnyAltAddress(obj any, eoaLower string) (string, bool) {
	switch t := obj.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			v := t[k]
			if addr, ok := normalizeAddr(v); ok && !strings.EqualFold(addr, eoaLower) {
				return addr, true
			}
			if nested, ok := findAnyAltAddress(v, eoaLower); ok {
				return nested, true
			}
		}
	case []any:
		for _, item := range t {
			if nested, ok := findAnyAltAddress(item, eoaLower); ok {
				return nested, true
			}
		}
	}
	return "", false
}
