package models

import "time"

// LedgerEntry tracks an open position as seen by this process, keyed by
// (symbol, side). The entry price recorded here is the one used for P&L
// when the position closes; it is intentionally independent of the
// exchange's own averaged entry price.
type LedgerEntry struct {
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	Quantity   float64
	Leverage   int
	OpenTime   time.Time
}

// TradeRecord is an immutable, append-only record of one close or partial
// close. Created exactly once per close event, never mutated.
type TradeRecord struct {
	ID         string
	AgentID    string
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	ClosePrice float64
	Quantity   float64
	Leverage   int
	OpenTime   time.Time
	CloseTime  time.Time
	PnlPct     float64
	PnlUsdt    float64
}

// EquityPoint is one append-only equity observation per completed cycle.
// AdjustedEquity = GrossEquity - cumulative NetDeposits.
type EquityPoint struct {
	AgentID          string
	Timestamp        time.Time
	Cycle            int
	GrossEquity      float64
	AdjustedEquity   float64
	UnrealizedPnl    float64
	NetDeposits      float64
	ExternalCashFlow float64
}

// OrderResult is what the exchange reports after an open order executes.
type OrderResult struct {
	Price    float64
	Quantity float64
}

// CloseResult is what the exchange reports after a close order executes.
type CloseResult struct {
	ClosedQuantity float64
	FullyClosed    bool
}
