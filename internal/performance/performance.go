// Package performance derives summary statistics from the trade history
// for inclusion in the decision model's market context.
package performance

import (
	"fmt"
	"strings"

	"perp-trader/internal/models"
)

// Metrics summarizes a trade history.
type Metrics struct {
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	TotalPnlUsdt float64
	AvgPnlUsdt   float64
	BestPnlUsdt  float64
	WorstPnlUsdt float64
}

// Calculate computes metrics over the full trade history.
func Calculate(trades []models.TradeRecord) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	m.BestPnlUsdt = trades[0].PnlUsdt
	m.WorstPnlUsdt = trades[0].PnlUsdt
	for _, t := range trades {
		m.TotalPnlUsdt += t.PnlUsdt
		if t.PnlUsdt > 0 {
			m.Wins++
		} else {
			m.Losses++
		}
		if t.PnlUsdt > m.BestPnlUsdt {
			m.BestPnlUsdt = t.PnlUsdt
		}
		if t.PnlUsdt < m.WorstPnlUsdt {
			m.WorstPnlUsdt = t.PnlUsdt
		}
	}
	m.WinRate = float64(m.Wins) / float64(len(trades)) * 100
	m.AvgPnlUsdt = m.TotalPnlUsdt / float64(len(trades))
	return m
}

// Format renders metrics as a prompt section.
func (m Metrics) Format() string {
	if m.TotalTrades == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("**Performance:**\n")
	fmt.Fprintf(&b, "Trades: %d | Win rate: %.1f%% (%dW/%dL)\n",
		m.TotalTrades, m.WinRate, m.Wins, m.Losses)
	fmt.Fprintf(&b, "Total P/L: $%+.2f | Avg: $%+.2f | Best: $%+.2f | Worst: $%+.2f",
		m.TotalPnlUsdt, m.AvgPnlUsdt, m.BestPnlUsdt, m.WorstPnlUsdt)
	return b.String()
}
