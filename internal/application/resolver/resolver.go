package resolver

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opipolix/gateway/internal/domain"
	"github.com/opipolix/gateway/internal/ports"
)

// Resolver discovers a wallet's trading context and enriches free-text
// market search.
type Resolver struct {
	wallet  ports.WalletMetadata
	gamma   ports.GammaMarkets
	chainID int64
}

// New builds a Resolver. wallet and gamma may individually be nil. A nil
// wallet makes Resolve return an EOA-only context and Search return no hits —
// mirroring the Python client's "Dome unavailable" fallback; a nil gamma only
// turns off the Gamma token-ID fallback in Search.
func New(wallet ports.WalletMetadata, gamma ports.GammaMarkets, chainID int64) *Resolver {
	return &Resolver{wallet: wallet, gamma: gamma, chainID: chainID}
}

// Resolve determines the trading context for eoaAddress: whether trades
// should be funded and signed as the EOA directly, or through a
// proxy/safe wallet discovered in the wallet-metadata blob.
func (r *Resolver) Resolve(ctx context.Context, eoaAddress string) domain.TradingContext {
	tc := domain.TradingContext{
		EOAAddress:    eoaAddress,
		SignatureType: 0,
	}

	if r.wallet == nil {
		return tc
	}

	eoaLower := strings.ToLower(eoaAddress)

	walletData, err := r.wallet.GetWallet(ctx, eoaAddress)
	if err != nil {
		slog.Warn("resolver: wallet metadata lookup failed", "eoa", eoaAddress, "err", err)
		tc.ResolverWarning = err.Error()
		return tc
	}

	summary := extractWalletSummary(walletData)
	if summary.HasAvailable {
		tc.AvailableUSDC = summary.AvailableUSDC
	}
	if summary.HasTotal {
		tc.TotalUSDC = summary.TotalUSDC
	}

	proxy, found := findProxyInObj(walletData, eoaLower)
	if !found {
		proxy, found = findAnyAltAddress(walletData, eoaLower)
	}

	if found && !strings.EqualFold(proxy, eoaAddress) {
		tc.ProxyAddress = proxy
		tc.SignatureType = 2
	}

	return tc
}

// Search runs a free-text market search and fills in any missing token IDs
// via the Gamma fallback lookup.
func (r *Resolver) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if r.wallet == nil {
		return nil, nil
	}

	markets, err := r.wallet.SearchMarkets(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.SearchResult, 0, len(markets))
	for _, market := range markets {
		marketID := stringField(market, "market_id")
		question := firstNonEmpty(stringField(market, "question"), stringField(market, "title"))

		yesToken, noToken := extractTokenIDsFromMarket(market)
		if (yesToken == "" || noToken == "") && marketID != "" && r.gamma != nil {
			gy, gn := r.extractTokenIDsFromGamma(ctx, marketID)
			if yesToken == "" {
				yesToken = gy
			}
			if noToken == "" {
				noToken = gn
			}
		}

		yesLabel, noLabel := extractOutcomeLabelsFromMarket(market, yesToken, noToken)

		rows = append(rows, domain.SearchResult{
			MarketID:         marketID,
			Title:            firstNonEmpty(stringField(market, "title"), question, "Untitled"),
			Question:         question,
			Liquidity:        floatField(market, "liquidity"),
			OpportunityScore: floatField(market, "opportunity_score"),
			YesTokenID:       yesToken,
			NoTokenID:        noToken,
			YesLabel:         yesLabel,
			NoLabel:          noLabel,
			Source:           "dome",
		})
	}

	return rows, nil
}

func (r *Resolver) extractTokenIDsFromGamma(ctx context.Context, marketID string) (yes, no string) {
	market, err := r.gamma.MarketByID(ctx, marketID)
	if err != nil || market == nil {
		return "", ""
	}

	outcomes, _ := market["outcomes"].([]any)
	tokenIDs, _ := market["clobTokenIds"].([]any)
	if tokenIDs == nil {
		tokenIDs, _ = market["clob_token_ids"].([]any)
	}

	for i := 0; i < len(outcomes) && i < len(tokenIDs); i++ {
		label := strings.ToLower(toString(outcomes[i]))
		token := toString(tokenIDs[i])
		switch {
		case strings.Contains(label, "yes"):
			yes = token
		case strings.Contains(label, "no"):
			no = token
		}
	}
	return yes, no
}

func extractTokenIDsFromMarket(market map[string]any) (yes, no string) {
	yes = firstPresent(market, "clob_token_yes", "clobTokenYes", "yes_token_id", "yesTokenId", "token_yes")
	no = firstPresent(market, "clob_token_no", "clobTokenNo", "no_token_id", "noTokenId", "token_no")
	if yes != "" && no != "" {
		return yes, no
	}

	domeRaw, _ := market["dome_raw"].(map[string]any)
	sideAID := firstPresent(domeRaw, "side_a_id", "sideAId")
	sideBID := firstPresent(domeRaw, "side_b_id", "sideBId")
	sideALabel := strings.ToLower(firstPresent(domeRaw, "side_a_label", "sideALabel"))
	sideBLabel := strings.ToLower(firstPresent(domeRaw, "side_b_label", "sideBLabel"))

	if yes == "" && sideAID != "" && strings.Contains(sideALabel, "yes") {
		yes = sideAID
	}
	if no == "" && sideBID != "" && strings.Contains(sideBLabel, "no") {
		no = sideBID
	}
	if yes == "" && sideBID != "" && strings.Contains(sideBLabel, "yes") {
		yes = sideBID
	}
	if no == "" && sideAID != "" && strings.Contains(sideALabel, "no") {
		no = sideAID
	}
	return yes, no
}

func extractOutcomeLabelsFromMarket(market map[string]any, yesToken, noToken string) (yesLabel, noLabel string) {
	yesLabel = cleanLabel(firstPresent(market, "yes_label", "yes_outcome", "outcome_yes", "yesOutcome"))
	noLabel = cleanLabel(firstPresent(market, "no_label", "no_outcome", "outcome_no", "noOutcome"))

	domeRaw, _ := market["dome_raw"].(map[string]any)
	sideAID := firstPresent(domeRaw, "side_a_id", "sideAId")
	sideBID := firstPresent(domeRaw, "side_b_id", "sideBId")
	sideALabel := cleanLabel(firstPresent(domeRaw, "side_a_label", "sideALabel"))
	sideBLabel := cleanLabel(firstPresent(domeRaw, "side_b_label", "sideBLabel"))

	if yesLabel == "" && yesToken != "" && sideAID == yesToken {
		yesLabel = sideALabel
	}
	if yesLabel == "" && yesToken != "" && sideBID == yesToken {
		yesLabel = sideBLabel
	}
	if noLabel == "" && noToken != "" && sideAID == noToken {
		noLabel = sideALabel
	}
	if noLabel == "" && noToken != "" && sideBID == noToken {
		noLabel = sideBLabel
	}

	if yesLabel == "" && strings.EqualFold(sideALabel, "yes") {
		yesLabel = sideALabel
	}
	if yesLabel == "" && strings.EqualFold(sideBLabel, "yes") {
		yesLabel = sideBLabel
	}
	if noLabel == "" && strings.EqualFold(sideALabel, "no") {
		noLabel = sideALabel
	}
	if noLabel == "" && strings.EqualFold(sideBLabel, "no") {
		noLabel = sideBLabel
	}

	return yesLabel, noLabel
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "yes":
		return "YES"
	case "no":
		return "NO"
	default:
		return s
	}
}

func firstPresent(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	return toString(m[key])
}

func floatField(m map[string]any, key string) float64 {
	f, _ := toFloat(m[key])
	return f
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
