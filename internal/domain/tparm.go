package domain

import "time"

// TpLevel is one rung of a take-profit ladder: once the cumulative fill
// ratio of the entry order reaches this rung's cumulative size_pct share,
// its signed order is placed.
type TpLevel struct {
	Price   float64 `json:"price"`
	SizePct float64 `json:"size_pct"`
}

// SignedTpOrder pairs a ladder level index with the pre-signed order to
// place once that level is crossed.
type SignedTpOrder struct {
	LevelIndex  int         `json:"level_index"`
	OrderType   string      `json:"order_type"`
	SignedOrder SignedOrder `json:"signed_order"`
}

// TpArmRequest is the body of POST /api/tp/arm.
type TpArmRequest struct {
	EntryOrderID    string          `json:"entry_order_id"`
	TokenID         string          `json:"token_id"`
	EntrySizeTokens float64         `json:"entry_size_tokens"`
	Mode            string          `json:"mode"` // "single" or "ladder"
	Levels          []TpLevel       `json:"levels"`
	SignedTpOrders  []SignedTpOrder `json:"signed_tp_orders"`
	MaxMinutes      int             `json:"max_minutes,omitempty"`
}

// PlacedLevel records the outcome of crossing one ladder level.
type PlacedLevel struct {
	Status          string    `json:"status"` // "placed" or "error"
	TpOrderID       string    `json:"tp_order_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	FillRatioTrigger float64  `json:"fill_ratio_trigger,omitempty"`
	At              time.Time `json:"at"`
}

// TpEvent is one entry of an arm's audit trail.
type TpEvent struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"` // "tp_placed" | "timeout" | "poll_error" | "completed" | "cancelled"
	Level   int       `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Arm statuses.
const (
	ArmStatusArmed     = "armed"
	ArmStatusCompleted = "completed"
	ArmStatusCancelled = "cancelled"
	ArmStatusError     = "error"
	ArmStatusTimeout   = "timeout"
)

// TpArm is the full server-side state of one armed take-profit ladder.
type TpArm struct {
	ArmID           string
	EOAAddress      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	EntryOrderID    string
	TokenID         string
	EntrySizeTokens float64
	Mode            string
	Levels          []TpLevel
	SignedTpOrders  map[int]SignedTpOrder
	PlacedLevels    map[int]PlacedLevel
	Status          string
	LastFilledTokens float64
	PollSeconds     float64
	MaxMinutes      int
	Events          []TpEvent
	ClobCreds       ClobCreds
	TradingContext  TradingContext
}

// Clone deep-copies the arm so callers never mutate Store-owned state.
func (a TpArm) Clone() TpArm {
	out := a
	out.Levels = append([]TpLevel(nil), a.Levels...)
	out.Events = append([]TpEvent(nil), a.Events...)
	out.SignedTpOrders = make(map[int]SignedTpOrder, len(a.SignedTpOrders))
	for k, v := range a.SignedTpOrders {
		out.SignedTpOrders[k] = v
	}
	out.PlacedLevels = make(map[int]PlacedLevel, len(a.PlacedLevels))
	for k, v := range a.PlacedLevels {
		out.PlacedLevels[k] = v
	}
	return out
}
