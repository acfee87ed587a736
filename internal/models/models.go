// Package models defines the core data types shared across the trading system.
package models

import "time"

// PositionSide represents the direction of a derivatives position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Valid reports whether the side is one of the two known directions.
func (s PositionSide) Valid() bool {
	return s == SideLong || s == SideShort
}

// Opposite returns the other direction.
func (s PositionSide) Opposite() PositionSide {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// AccountSnapshot is a point-in-time view of the exchange account.
// It is fetched fresh every cycle and never persisted directly; only
// derived fields end up in EquityPoint.
type AccountSnapshot struct {
	TotalWalletBalance    float64
	AvailableBalance      float64
	TotalUnrealizedProfit float64
}

// Position is an open position as reported by the exchange.
// PositionAmt is a magnitude; direction is carried by Side.
type Position struct {
	Symbol      string
	Side        PositionSide
	PositionAmt float64
	EntryPrice  float64
	MarkPrice   float64
	Leverage    int
}

// MarginUsed returns the USD collateral this position consumes.
func (p Position) MarginUsed() float64 {
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	amt := p.PositionAmt
	if amt < 0 {
		amt = -amt
	}
	return amt * p.EntryPrice / float64(lev)
}

// UnrealizedPnlPct returns the live P/L percentage against entry.
func (p Position) UnrealizedPnlPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideLong {
		return (p.MarkPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - p.MarkPrice) / p.EntryPrice * 100
}

// Kline is one OHLCV candle from the exchange.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// SymbolSnapshot is the per-symbol market view assembled for the decision
// model: one indicator set per timeframe plus optional funding data.
type SymbolSnapshot struct {
	Symbol      string
	Timeframes  map[string]IndicatorSet
	FundingRate *float64 // percent, nil when the venue does not expose it
}

// IndicatorSet holds the technical readings for one timeframe. The values
// are computed by the exchange/TA collaborator; the core only formats them.
type IndicatorSet struct {
	Interval    string
	LastPrice   float64
	RSI         float64
	ADX         float64
	VolumeRatio float64
	EMA20       float64
	MACD        float64
}
