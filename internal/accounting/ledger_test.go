package accounting

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

func TestLedger_RecordOpenAndGet(t *testing.T) {
	ledger := NewLedger()
	now := time.Now()

	ledger.RecordOpen("BTCUSDT", models.SideLong, 50000, 0.5, 3, now)

	entry, ok := ledger.Get("BTCUSDT", models.SideLong)
	if !ok {
		t.Fatal("expected tracked entry")
	}
	if entry.EntryPrice != 50000 || entry.Quantity != 0.5 || entry.Leverage != 3 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	// Long and short on the same symbol are independent entries.
	if _, ok := ledger.Get("BTCUSDT", models.SideShort); ok {
		t.Error("short side must not exist")
	}
}

func TestLedger_AddToPositionKeepsOriginalEntryPrice(t *testing.T) {
	ledger := NewLedger()
	now := time.Now()

	ledger.RecordOpen("ETHUSDT", models.SideShort, 3000, 1.0, 2, now)
	ledger.RecordOpen("ETHUSDT", models.SideShort, 3500, 0.5, 2, now.Add(time.Minute))

	entry, ok := ledger.Get("ETHUSDT", models.SideShort)
	if !ok {
		t.Fatal("expected tracked entry")
	}
	if entry.Quantity != 1.5 {
		t.Errorf("expected accumulated quantity 1.5, got %.4f", entry.Quantity)
	}
	if entry.EntryPrice != 3000 {
		t.Errorf("expected original entry price 3000, got %.2f", entry.EntryPrice)
	}
	if !entry.OpenTime.Equal(now) {
		t.Error("expected original open time preserved")
	}
}

func TestLedger_RecordCloseLongPnl(t *testing.T) {
	ledger := NewLedger()
	ledger.RecordOpen("BTCUSDT", models.SideLong, 50000, 0.5, 3, time.Now())

	trade, err := ledger.RecordClose("BTCUSDT", models.SideLong, 52000, 0.2, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// (52000-50000) * 0.2 * 3
	if math.Abs(trade.PnlUsdt-1200) > 1e-9 {
		t.Errorf("expected pnl 1200, got %.4f", trade.PnlUsdt)
	}
	// (52000-50000)/50000 * 100
	if math.Abs(trade.PnlPct-4) > 1e-9 {
		t.Errorf("expected pnl pct 4, got %.4f", trade.PnlPct)
	}

	entry, ok := ledger.Get("BTCUSDT", models.SideLong)
	if !ok {
		t.Fatal("partial close must keep the entry")
	}
	if math.Abs(entry.Quantity-0.3) > 1e-9 {
		t.Errorf("expected remaining 0.3, got %.6f", entry.Quantity)
	}
}

func TestLedger_RecordCloseShortPnl(t *testing.T) {
	ledger := NewLedger()
	ledger.RecordOpen("ETHUSDT", models.SideShort, 3000, 1.0, 2, time.Now())

	trade, err := ledger.RecordClose("ETHUSDT", models.SideShort, 2700, 1.0, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// (3000-2700) * 1.0 * 2
	if math.Abs(trade.PnlUsdt-600) > 1e-9 {
		t.Errorf("expected pnl 600, got %.4f", trade.PnlUsdt)
	}
	if math.Abs(trade.PnlPct-10) > 1e-9 {
		t.Errorf("expected pnl pct 10, got %.4f", trade.PnlPct)
	}

	if _, ok := ledger.Get("ETHUSDT", models.SideShort); ok {
		t.Error("full close must remove the entry")
	}
}

func TestLedger_CloseClampsToTrackedQuantity(t *testing.T) {
	ledger := NewLedger()
	ledger.RecordOpen("BTCUSDT", models.SideLong, 40000, 0.5, 1, time.Now())

	trade, err := ledger.RecordClose("BTCUSDT", models.SideLong, 41000, 2.0, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Quantity != 0.5 {
		t.Errorf("expected close clamped to 0.5, got %.4f", trade.Quantity)
	}
	if _, ok := ledger.Get("BTCUSDT", models.SideLong); ok {
		t.Error("clamped full close must remove the entry")
	}
}

func TestLedger_CloseUntrackedPosition(t *testing.T) {
	ledger := NewLedger()
	_, err := ledger.RecordClose("BTCUSDT", models.SideLong, 50000, 1, time.Now())
	if !errors.Is(err, errors.ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestLedger_TinyResidualRemovesEntry(t *testing.T) {
	ledger := NewLedger()
	ledger.RecordOpen("BTCUSDT", models.SideLong, 50000, 0.3, 1, time.Now())

	// 0.3 - 0.1*3 leaves float residue well under the removal threshold.
	for i := 0; i < 3; i++ {
		if _, err := ledger.RecordClose("BTCUSDT", models.SideLong, 50000, 0.1, time.Now()); err != nil {
			t.Fatalf("close %d failed: %v", i, err)
		}
	}
	if _, ok := ledger.Get("BTCUSDT", models.SideLong); ok {
		t.Error("entry with negligible residual must be removed")
	}
}

// Property: quantity is conserved. Over any sequence of opens and closes
// on one (symbol, side), tracked quantity plus the sum of closed trade
// quantities equals the total opened quantity.
func TestProperty_LedgerQuantityConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	type step struct {
		open bool
		qty  float64
	}

	stepGen := gopter.CombineGens(gen.Bool(), gen.Float64Range(0.001, 5)).
		Map(func(values []interface{}) step {
			return step{open: values[0].(bool), qty: values[1].(float64)}
		})

	properties.Property("opened = tracked + closed", prop.ForAll(
		func(steps []step) bool {
			ledger := NewLedger()
			now := time.Now()

			var opened, closed float64
			for _, s := range steps {
				if s.open {
					ledger.RecordOpen("BTCUSDT", models.SideLong, 50000, s.qty, 2, now)
					opened += s.qty
					continue
				}
				trade, err := ledger.RecordClose("BTCUSDT", models.SideLong, 51000, s.qty, now)
				if err != nil {
					continue // nothing tracked yet, or nothing to close
				}
				closed += trade.Quantity
			}

			var tracked float64
			if entry, ok := ledger.Get("BTCUSDT", models.SideLong); ok {
				tracked = entry.Quantity
			}

			if math.Abs(opened-(tracked+closed)) > 1e-6 {
				t.Logf("opened=%.8f tracked=%.8f closed=%.8f", opened, tracked, closed)
				return false
			}
			return true
		},
		gen.SliceOf(stepGen),
	))

	properties.TestingRun(t)
}

// Property: a close never yields more quantity than is tracked, and the
// trade's P&L always carries the ledger entry price, not the close price.
func TestProperty_CloseNeverExceedsTracked(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("close quantity bounded by tracked quantity", prop.ForAll(
		func(openQty, closeQty, entryPrice, closePrice float64) bool {
			ledger := NewLedger()
			ledger.RecordOpen("ETHUSDT", models.SideLong, entryPrice, openQty, 1, time.Now())

			trade, err := ledger.RecordClose("ETHUSDT", models.SideLong, closePrice, closeQty, time.Now())
			if err != nil {
				return errors.Is(err, errors.ErrNothingToClose)
			}

			if trade.Quantity > openQty+1e-12 {
				return false
			}
			if trade.EntryPrice != entryPrice {
				return false
			}
			expectedPnl := (closePrice - entryPrice) * trade.Quantity
			return math.Abs(trade.PnlUsdt-expectedPnl) < 1e-6
		},
		gen.Float64Range(0.001, 100),
		gen.Float64Range(0, 200),
		gen.Float64Range(1, 100000),
		gen.Float64Range(1, 100000),
	))

	properties.TestingRun(t)
}
