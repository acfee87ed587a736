// Package accounting tracks open positions and reconciles account equity
// against trading activity.
package accounting

import (
	"fmt"
	"sync"
	"time"

	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

// ledgerEpsilon is the residual quantity below which a position entry is
// considered fully closed and removed.
const ledgerEpsilon = 1e-9

// Ledger tracks open positions as seen by this process, keyed by
// (symbol, side). It is the source of truth for the entry price used in
// P&L: the venue may average entries across adds, the ledger does not.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]models.LedgerEntry
}

// NewLedger creates an empty position ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]models.LedgerEntry)}
}

func ledgerKey(symbol string, side models.PositionSide) string {
	return symbol + "_" + string(side)
}

// RecordOpen records an executed open order. Opening into an existing
// (symbol, side) entry adds quantity while keeping the original entry
// price and open time, so quantity conservation holds across the entry's
// lifetime.
func (l *Ledger) RecordOpen(symbol string, side models.PositionSide, entryPrice, quantity float64, leverage int, openTime time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(symbol, side)
	if entry, ok := l.entries[key]; ok {
		entry.Quantity += quantity
		l.entries[key] = entry
		return
	}
	l.entries[key] = models.LedgerEntry{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Leverage:   leverage,
		OpenTime:   openTime,
	}
}

// Get returns the tracked entry for (symbol, side).
func (l *Ledger) Get(symbol string, side models.PositionSide) (models.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ledgerKey(symbol, side)]
	return entry, ok
}

// Entries returns a snapshot of all tracked entries.
func (l *Ledger) Entries() []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}

// RecordClose records an executed close and returns the immutable trade
// record for it. The close quantity is clamped to the tracked quantity;
// the entry is reduced in place and removed only when the remainder is
// negligible. Entry price and leverage come from the ledger, not from the
// venue's live position.
func (l *Ledger) RecordClose(symbol string, side models.PositionSide, closePrice, quantity float64, closeTime time.Time) (models.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(symbol, side)
	entry, ok := l.entries[key]
	if !ok {
		return models.TradeRecord{}, fmt.Errorf("%w: no tracked %s position for %s",
			errors.ErrPositionNotFound, side, symbol)
	}

	closeQty := quantity
	if closeQty < 0 {
		closeQty = 0
	}
	if closeQty > entry.Quantity {
		closeQty = entry.Quantity
	}
	if closeQty <= 0 {
		return models.TradeRecord{}, errors.ErrNothingToClose
	}

	var pnlPct, pnlUsdt float64
	if side == models.SideLong {
		pnlPct = (closePrice - entry.EntryPrice) / entry.EntryPrice * 100
		pnlUsdt = (closePrice - entry.EntryPrice) * closeQty * float64(entry.Leverage)
	} else {
		pnlPct = (entry.EntryPrice - closePrice) / entry.EntryPrice * 100
		pnlUsdt = (entry.EntryPrice - closePrice) * closeQty * float64(entry.Leverage)
	}

	trade := models.TradeRecord{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry.EntryPrice,
		ClosePrice: closePrice,
		Quantity:   closeQty,
		Leverage:   entry.Leverage,
		OpenTime:   entry.OpenTime,
		CloseTime:  closeTime,
		PnlPct:     pnlPct,
		PnlUsdt:    pnlUsdt,
	}

	remaining := entry.Quantity - closeQty
	if remaining <= ledgerEpsilon {
		delete(l.entries, key)
	} else {
		entry.Quantity = remaining
		l.entries[key] = entry
	}

	return trade, nil
}
