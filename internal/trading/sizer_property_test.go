package trading

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"perp-trader/internal/models"
)

// Property: whatever margin is requested, an approved order never commits
// more than the applicable single-trade cap unless the minimum-quantity
// floor raised it, and a raised margin is always flagged.
func TestProperty_ApprovedMarginRespectsSingleTradeCap(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("approved margin within cap unless flagged raised", prop.ForAll(
		func(available, requested, price float64, leverage int) bool {
			acct := AccountState{AvailableBalance: available, TotalWalletBalance: available}
			req := OpenRequest{
				Symbol:             "BTCUSDT",
				Side:               models.SideLong,
				Leverage:           leverage,
				RequestedMarginUSD: requested,
			}

			approved, err := SizeOpenOrder(req, acct, price, testRisk(), zerolog.Nop())
			if err != nil {
				// Rejection is always a legal outcome.
				return true
			}

			capAmount := available * testRisk().MaxSingleTradePct / 100
			if approved.MarginUSD > capAmount+1e-9 && !approved.MarginRaised {
				t.Logf("margin %.4f over cap %.4f without MarginRaised", approved.MarginUSD, capAmount)
				return false
			}
			return true
		},
		gen.Float64Range(10, 100000),
		gen.Float64Range(0.01, 200000),
		gen.Float64Range(0.5, 100000),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// Property: an approved order is always affordable. The margin implied by
// the formatted quantity never exceeds the available balance, and the
// quantity never falls below the venue minimum.
func TestProperty_ApprovedOrderAffordableAndAboveMinimum(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("formatted margin within balance, quantity above floor", prop.ForAll(
		func(available, requested, price float64, leverage int) bool {
			risk := testRisk()
			acct := AccountState{AvailableBalance: available, TotalWalletBalance: available}
			req := OpenRequest{
				Symbol:             "ETHUSDT",
				Side:               models.SideShort,
				Leverage:           leverage,
				RequestedMarginUSD: requested,
			}

			approved, err := SizeOpenOrder(req, acct, price, risk, zerolog.Nop())
			if err != nil {
				return true
			}

			if approved.Quantity < risk.MinQuantity {
				t.Logf("approved quantity %.8f below minimum %.4f", approved.Quantity, risk.MinQuantity)
				return false
			}
			requiredMargin := approved.EstimatedFormattedQty * price / float64(approved.Leverage)
			if requiredMargin > available+1e-9 {
				t.Logf("formatted margin %.4f exceeds balance %.4f", requiredMargin, available)
				return false
			}
			return true
		},
		gen.Float64Range(10, 100000),
		gen.Float64Range(0.01, 200000),
		gen.Float64Range(0.5, 100000),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// Property: the total-position bound holds. When positions already commit
// margin, an approved open never pushes the committed total past the cap
// unless the minimum-quantity floor raised the order.
func TestProperty_TotalCommittedMarginBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("committed total stays under the total cap", prop.ForAll(
		func(wallet, usedFrac, requested float64) bool {
			risk := testRisk()
			used := wallet * usedFrac
			positions := []models.Position{
				{Symbol: "BTCUSDT", Side: models.SideLong, PositionAmt: used / 50000, EntryPrice: 50000, Leverage: 1},
			}
			available := wallet - used
			if available < 0 {
				available = 0
			}
			acct := AccountState{AvailableBalance: available, TotalWalletBalance: wallet, Positions: positions}
			req := OpenRequest{Symbol: "ETHUSDT", Side: models.SideLong, Leverage: 1, RequestedMarginUSD: requested}

			approved, err := SizeOpenOrder(req, acct, 3000, risk, zerolog.Nop())
			if err != nil {
				return true
			}

			maxTotal := wallet * risk.MaxTotalPositionPct / 100
			if !approved.MarginRaised && used+approved.MarginUSD > maxTotal+1e-6 {
				t.Logf("total %.4f exceeds cap %.4f", used+approved.MarginUSD, maxTotal)
				return false
			}
			return true
		},
		gen.Float64Range(100, 100000),
		gen.Float64Range(0, 0.9),
		gen.Float64Range(1, 100000),
	))

	properties.TestingRun(t)
}
