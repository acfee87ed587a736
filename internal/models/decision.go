package models

import "time"

// DecisionAction is one of the actions the decision model may emit.
type DecisionAction string

const (
	ActionOpenLong   DecisionAction = "open_long"
	ActionOpenShort  DecisionAction = "open_short"
	ActionCloseLong  DecisionAction = "close_long"
	ActionCloseShort DecisionAction = "close_short"
	ActionHold       DecisionAction = "hold"
	ActionWait       DecisionAction = "wait"
)

// Decision is one structured action parsed from the model's JSON output.
// Optional numeric fields use pointers so "absent" is distinguishable
// from zero.
type Decision struct {
	Action           DecisionAction `json:"action"`
	Symbol           string         `json:"symbol"`
	Leverage         int            `json:"leverage,omitempty"`
	PositionSizeUSD  float64        `json:"position_size_usd,omitempty"`
	CloseQuantity    *float64       `json:"close_quantity,omitempty"`
	CloseQuantityPct *float64       `json:"close_quantity_pct,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
}

// DecisionLog captures one full decision cycle for later analysis.
type DecisionLog struct {
	ID             string
	AgentID        string
	Cycle          int
	Timestamp      time.Time
	ChainOfThought string
	Decisions      []Decision
	Account        AccountState
	Positions      []Position
}

// AccountState is the persisted, deposit-adjusted account view attached
// to a decision log.
type AccountState struct {
	TotalWalletBalance    float64
	AvailableBalance      float64
	TotalUnrealizedProfit float64
	GrossTotalBalance     float64
	AdjustedTotalBalance  float64
	NetDeposits           float64
	ExternalCashFlow      float64
}
