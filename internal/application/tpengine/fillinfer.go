package tpengine

import (
	"sort"
	"strconv"
	"strings"
)

var percentKeys = set(
	"filledpct", "filled_pct", "fill_pct", "filledpercentage", "completion",
)

var amountKeys = set(
	"filled", "filledsize", "filled_size", "sizematched", "size_matched",
	"matchedsize", "matched_size", "filledamount", "filled_amount",
	"executedsize", "executed_size",
)

var statusKeys = set("status", "state", "order_status")

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
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

// sortedObjKeys returns m's keys in lexical order so the walkers below visit
// them in a fixed order, instead of Go's randomized map iteration.
func sortedObjKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func collectNumericValues(obj any, keys map[string]struct{}, out *[]float64) {
	switch t := obj.(type) {
	case map[string]any:
		for _, k := range sortedObjKeys(t) {
			v := t[k]
			if _, ok := keys[strings.ToLower(k)]; ok {
				if f, ok := asFloat(v); ok {
					*out = append(*out, f)
				}
			}
			collectNumericValues(v, keys, out)
		}
	case []any:
		for _, item := range t {
			collectNumericValues(item, keys, out)
		}
	}
}

func collectStatus(obj any) (string, bool) {
	switch t := obj.(type) {
	case map[string]any:
		ks := sortedObjKeys(t)
		for _, k := range ks {
			if _, ok := statusKeys[strings.ToLower(k)]; ok {
				if s, ok := t[k].(string); ok {
					return strings.ToLower(s), true
				}
			}
		}
		for _, k := range ks {
			if s, ok := collectStatus(t[k]); ok {
				return s, true
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := collectStatus(item); ok {
				return s, true
			}
		}
	}
	return "", false
}

// ExtractFilledTokens infers how many tokens of an entry order have filled
// from an upstream order payload whose shape is not fully known in advance.
// It tries, in order: a terminal "filled" status text (but not "partial"),
// a percentage-keyed field scaled by entrySizeTokens, then an absolute
// amount-keyed field — de-scaled by 1e6 if it looks like a micro-unit value
// far larger than entrySizeTokens could plausibly be.
func ExtractFilledTokens(orderPayload map[string]any, entrySizeTokens float64) float64 {
	if status, ok := collectStatus(orderPayload); ok {
		if strings.Contains(status, "filled") && !strings.Contains(status, "partial") {
			return entrySizeTokens
		}
	}

	var pctValues []float64
	collectNumericValues(orderPayload, percentKeys, &pctValues)
	for _, pct := range pctValues {
		if pct >= 0 && pct <= 1 {
			return clamp(pct*entrySizeTokens, entrySizeTokens)
		}
		if pct > 1 && pct <= 100 {
			return clamp((pct/100.0)*entrySizeTokens, entrySizeTokens)
		}
	}

	var amountValues []float64
	collectNumericValues(orderPayload, amountKeys, &amountValues)

	best := 0.0
	for _, val := range amountValues {
		if val > entrySizeTokens*1000 {
			val /= 1e6
		}
		if val > best {
			best = val
		}
	}

	return clamp(best, entrySizeTokens)
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
