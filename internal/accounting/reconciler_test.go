package accounting

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"perp-trader/internal/models"
)

func snap(wallet, unrealized float64) models.AccountSnapshot {
	return models.AccountSnapshot{
		TotalWalletBalance:    wallet,
		AvailableBalance:      wallet,
		TotalUnrealizedProfit: unrealized,
	}
}

func TestReconciler_FirstCycleDetectsNoFlow(t *testing.T) {
	r := NewReconciler("alpha")

	point := r.Reconcile(time.Now(), 1, snap(1000, 0), nil)
	if point.ExternalCashFlow != 0 {
		t.Errorf("first cycle must detect no flow, got %.4f", point.ExternalCashFlow)
	}
	if point.NetDeposits != 0 {
		t.Errorf("expected zero net deposits, got %.4f", point.NetDeposits)
	}
	if point.AdjustedEquity != 1000 {
		t.Errorf("expected adjusted equity 1000, got %.4f", point.AdjustedEquity)
	}
}

func TestReconciler_DepositDoesNotInflatePerformance(t *testing.T) {
	r := NewReconciler("alpha")
	now := time.Now()

	r.Reconcile(now, 1, snap(1000, 0), nil)
	// Equity jumps 500 with no trades and unchanged unrealized P&L.
	point := r.Reconcile(now.Add(time.Minute), 2, snap(1500, 0), nil)

	if math.Abs(point.ExternalCashFlow-500) > 1e-9 {
		t.Errorf("expected detected deposit 500, got %.4f", point.ExternalCashFlow)
	}
	if math.Abs(point.NetDeposits-500) > 1e-9 {
		t.Errorf("expected net deposits 500, got %.4f", point.NetDeposits)
	}
	if math.Abs(point.AdjustedEquity-1000) > 1e-9 {
		t.Errorf("deposit must not move adjusted equity, got %.4f", point.AdjustedEquity)
	}
}

func TestReconciler_TradingGainIsNotCashFlow(t *testing.T) {
	r := NewReconciler("alpha")
	now := time.Now()

	r.Reconcile(now, 1, snap(1000, 0), nil)

	trades := []models.TradeRecord{{Symbol: "BTCUSDT", Side: models.SideLong, PnlUsdt: 100}}
	point := r.Reconcile(now.Add(time.Minute), 2, snap(1100, 0), trades)

	if point.ExternalCashFlow != 0 {
		t.Errorf("realized gain must not read as cash flow, got %.4f", point.ExternalCashFlow)
	}
	if math.Abs(point.AdjustedEquity-1100) > 1e-9 {
		t.Errorf("expected adjusted equity 1100, got %.4f", point.AdjustedEquity)
	}
}

func TestReconciler_UnrealizedSwingIsNotCashFlow(t *testing.T) {
	r := NewReconciler("alpha")
	now := time.Now()

	r.Reconcile(now, 1, snap(1000, 50), nil)
	// Unrealized P&L moves by -80 while wallet equity moves the same way.
	point := r.Reconcile(now.Add(time.Minute), 2, snap(920, -30), nil)

	if point.ExternalCashFlow != 0 {
		t.Errorf("unrealized swing must not read as cash flow, got %.4f", point.ExternalCashFlow)
	}
}

func TestReconciler_WithdrawalReducesNetDeposits(t *testing.T) {
	r := NewReconciler("alpha")
	now := time.Now()

	r.Reconcile(now, 1, snap(1000, 0), nil)
	r.Reconcile(now.Add(time.Minute), 2, snap(1500, 0), nil)
	point := r.Reconcile(now.Add(2*time.Minute), 3, snap(1300, 0), nil)

	if math.Abs(point.ExternalCashFlow+200) > 1e-9 {
		t.Errorf("expected detected withdrawal -200, got %.4f", point.ExternalCashFlow)
	}
	if math.Abs(point.NetDeposits-300) > 1e-9 {
		t.Errorf("expected net deposits 300, got %.4f", point.NetDeposits)
	}
	if math.Abs(point.AdjustedEquity-1000) > 1e-9 {
		t.Errorf("expected adjusted equity 1000, got %.4f", point.AdjustedEquity)
	}
}

func TestReconciler_FloatResidueSnapsToZero(t *testing.T) {
	r := NewReconciler("alpha")
	now := time.Now()

	r.Reconcile(now, 1, snap(1000, 0), nil)
	point := r.Reconcile(now.Add(time.Minute), 2, snap(1000+4e-7, 0), nil)

	if point.ExternalCashFlow != 0 {
		t.Errorf("sub-epsilon residue must snap to zero, got %.10f", point.ExternalCashFlow)
	}
}

func TestReconciler_RestoreResumesExactly(t *testing.T) {
	now := time.Now()
	trades := []models.TradeRecord{
		{Symbol: "BTCUSDT", PnlUsdt: 40},
		{Symbol: "ETHUSDT", PnlUsdt: -10},
	}

	// Uninterrupted reconciler.
	full := NewReconciler("alpha")
	full.Reconcile(now, 1, snap(1000, 0), nil)
	mid := full.Reconcile(now.Add(time.Minute), 2, snap(1530, 10), trades)
	want := full.Reconcile(now.Add(2*time.Minute), 3, snap(1480, -5), trades)

	// Restarted reconciler resuming from the persisted point.
	resumed := NewReconciler("alpha")
	resumed.Restore(&mid, len(trades))
	got := resumed.Reconcile(now.Add(2*time.Minute), 3, snap(1480, -5), trades)

	if math.Abs(got.ExternalCashFlow-want.ExternalCashFlow) > 1e-9 ||
		math.Abs(got.NetDeposits-want.NetDeposits) > 1e-9 ||
		math.Abs(got.AdjustedEquity-want.AdjustedEquity) > 1e-9 {
		t.Errorf("restored reconciler diverged: got %+v want %+v", got, want)
	}
}

// Property: over any random sequence of deposits, withdrawals, realized
// trades, and unrealized swings, accumulated net deposits equal the true
// external flow and adjusted equity tracks pure trading performance.
func TestProperty_ReconcilerAttributesFlowsExactly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	type cycle struct {
		flow       float64 // deposit (+) or withdrawal (-)
		realized   float64
		unrealized float64 // absolute unrealized P&L after the cycle
	}

	cycleGen := gopter.CombineGens(
		gen.Float64Range(-300, 300),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-50, 50),
	).Map(func(values []interface{}) cycle {
		return cycle{
			flow:       values[0].(float64),
			realized:   values[1].(float64),
			unrealized: values[2].(float64),
		}
	})

	properties.Property("net deposits equal true external flow", prop.ForAll(
		func(cycles []cycle) bool {
			r := NewReconciler("alpha")
			now := time.Now()

			equity := 1000.0
			unrealized := 0.0
			var trades []models.TradeRecord
			var trueFlow float64

			r.Reconcile(now, 1, snap(equity, unrealized), trades)

			for i, c := range cycles {
				equity += c.flow + c.realized + (c.unrealized - unrealized)
				unrealized = c.unrealized
				trueFlow += c.flow
				if c.realized != 0 {
					trades = append(trades, models.TradeRecord{PnlUsdt: c.realized})
				}

				point := r.Reconcile(now.Add(time.Duration(i+1)*time.Minute), i+2,
					snap(equity, unrealized), trades)

				if math.Abs(point.NetDeposits-trueFlow) > 1e-6*float64(i+2) {
					t.Logf("cycle %d: netDeposits=%.8f trueFlow=%.8f", i+2, point.NetDeposits, trueFlow)
					return false
				}
				if math.Abs(point.AdjustedEquity-(equity-trueFlow)) > 1e-6*float64(i+2) {
					t.Logf("cycle %d: adjusted=%.8f want=%.8f", i+2, point.AdjustedEquity, equity-trueFlow)
					return false
				}
			}
			return true
		},
		gen.SliceOf(cycleGen),
	))

	properties.TestingRun(t)
}
