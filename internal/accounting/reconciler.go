package accounting

import (
	"time"

	"perp-trader/internal/models"
)

// cashFlowEpsilon snaps tiny float residue in the cash-flow identity to
// exactly zero.
const cashFlowEpsilon = 1e-6

// Reconciler turns raw account snapshots into attributable equity points.
//
// The venue exposes no deposit/withdrawal ledger, so any equity movement
// not explained by trades closed this cycle or by the change in unrealized
// P&L on still-open positions must be external cash flow (deposit,
// withdrawal, or fees/funding the model does not otherwise track). The
// reconciler is a single linear identity, not a heuristic:
//
//	externalCashFlow = equityDelta - realizedChange - unrealizedDelta
type Reconciler struct {
	agentID string

	netDeposits          float64
	lastGrossEquity      float64
	haveLast             bool
	lastUnrealizedPnl    float64
	lastLoggedTradeIndex int
	lastExternalCashFlow float64
}

// NewReconciler creates a reconciler with no prior state (first cycle
// detects no cash flow).
func NewReconciler(agentID string) *Reconciler {
	return &Reconciler{agentID: agentID}
}

// Restore rebuilds reconciler state at startup from the most recent
// persisted equity point and the count of persisted trades, so a restarted
// process reconciles exactly as an uninterrupted one would.
func (r *Reconciler) Restore(last *models.EquityPoint, tradeCount int) {
	if last != nil {
		r.netDeposits = last.NetDeposits
		r.lastGrossEquity = last.GrossEquity
		r.lastUnrealizedPnl = last.UnrealizedPnl
		r.haveLast = true
	}
	r.lastLoggedTradeIndex = tradeCount
}

// Reconcile processes one cycle's snapshot against the full trade history
// and emits the cycle's equity point. trades must be the agent's complete
// ordered trade history; entries beyond the last logged index are the
// trades closed this cycle.
func (r *Reconciler) Reconcile(now time.Time, cycle int, snap models.AccountSnapshot, trades []models.TradeRecord) models.EquityPoint {
	grossEquity := snap.TotalWalletBalance
	unrealized := snap.TotalUnrealizedProfit

	var realizedChange float64
	if r.lastLoggedTradeIndex < len(trades) {
		for _, t := range trades[r.lastLoggedTradeIndex:] {
			realizedChange += t.PnlUsdt
		}
	}

	var externalCashFlow float64
	if r.haveLast {
		equityDelta := grossEquity - r.lastGrossEquity
		unrealizedDelta := unrealized - r.lastUnrealizedPnl
		externalCashFlow = equityDelta - realizedChange - unrealizedDelta
		if externalCashFlow < cashFlowEpsilon && externalCashFlow > -cashFlowEpsilon {
			externalCashFlow = 0
		}
		r.netDeposits += externalCashFlow
	}

	point := models.EquityPoint{
		AgentID:          r.agentID,
		Timestamp:        now,
		Cycle:            cycle,
		GrossEquity:      grossEquity,
		AdjustedEquity:   grossEquity - r.netDeposits,
		UnrealizedPnl:    unrealized,
		NetDeposits:      r.netDeposits,
		ExternalCashFlow: externalCashFlow,
	}

	r.lastGrossEquity = grossEquity
	r.lastUnrealizedPnl = unrealized
	r.haveLast = true
	r.lastLoggedTradeIndex = len(trades)
	r.lastExternalCashFlow = externalCashFlow

	return point
}

// NetDeposits returns the cumulative externally-attributed cash flow.
func (r *Reconciler) NetDeposits() float64 {
	return r.netDeposits
}

// LastExternalCashFlow returns the most recent cycle's detected flow.
func (r *Reconciler) LastExternalCashFlow() float64 {
	return r.lastExternalCashFlow
}

// AugmentAccount enriches a raw snapshot with deposit-adjusted fields for
// persistence alongside a decision log.
func (r *Reconciler) AugmentAccount(snap models.AccountSnapshot) models.AccountState {
	return models.AccountState{
		TotalWalletBalance:    snap.TotalWalletBalance,
		AvailableBalance:      snap.AvailableBalance,
		TotalUnrealizedProfit: snap.TotalUnrealizedProfit,
		GrossTotalBalance:     snap.TotalWalletBalance,
		AdjustedTotalBalance:  snap.TotalWalletBalance - r.netDeposits,
		NetDeposits:           r.netDeposits,
		ExternalCashFlow:      r.lastExternalCashFlow,
	}
}
