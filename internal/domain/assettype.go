package domain

// AssetType selects which balance/allowance a CLOBSession.GetBalanceAllowance
// call is asking about. Re-expressed here as a small Go enum since no
// client library in the pack carries Polymarket's own AssetType.
type AssetType string

const (
	AssetTypeCollateral AssetType = "COLLATERAL"
	AssetTypeConditional AssetType = "CONDITIONAL"
)
