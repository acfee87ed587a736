package trading

import (
	"math"

	"github.com/rs/zerolog"

	"perp-trader/internal/config"
	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

// minRemainingMargin is the floor below which leftover total-position
// headroom is not worth a trade.
const minRemainingMargin = 0.1

// OpenRequest is a requested open order before risk sizing.
type OpenRequest struct {
	Symbol             string
	Side               models.PositionSide
	Leverage           int
	RequestedMarginUSD float64
}

// AccountState is the account view the sizer evaluates a request against.
type AccountState struct {
	AvailableBalance   float64
	TotalWalletBalance float64
	Positions          []models.Position
}

// ApprovedOrder is the outcome of sizing: the order to submit, possibly
// reduced from the request.
type ApprovedOrder struct {
	Symbol   string
	Side     models.PositionSide
	Leverage int
	// MarginUSD is the margin the approved order commits. It can exceed
	// the requested margin when the minimum-quantity floor forces it up;
	// MarginRaised flags that case so callers can surface it.
	MarginUSD    float64
	Quantity     float64
	Price        float64
	MarginRaised bool
	// EstimatedFormattedQty anticipates the venue truncating quantity to
	// its own step size; it is used for the final margin check only.
	EstimatedFormattedQty float64
}

// SingleTradeCapPct returns the single-trade cap that applies: the
// conservative with-positions cap when any position is open, otherwise the
// aggressive one.
func SingleTradeCapPct(risk config.RiskConfig, hasPositions bool) float64 {
	if hasPositions {
		return risk.MaxSingleTradeWithPositionsPct
	}
	return risk.MaxSingleTradePct
}

// TotalMarginUsed sums the margin committed across all open positions.
func TotalMarginUsed(positions []models.Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.MarginUsed()
	}
	return total
}

// SizeOpenOrder converts a requested open into an approved order, applying
// each risk bound in sequence. Every step either reduces the request or
// rejects it with a SizingError; rejections skip only this decision.
func SizeOpenOrder(req OpenRequest, acct AccountState, price float64, risk config.RiskConfig, logger zerolog.Logger) (ApprovedOrder, error) {
	margin := req.RequestedMarginUSD
	leverage := req.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	// 1. Single-trade cap. Clamp down, never abort.
	capPct := SingleTradeCapPct(risk, len(acct.Positions) > 0)
	capAmount := acct.AvailableBalance * capPct / 100
	if margin > capAmount {
		logger.Warn().
			Str("symbol", req.Symbol).
			Float64("requested", margin).
			Float64("cap", capAmount).
			Float64("cap_pct", capPct).
			Msg("Requested margin exceeds single-trade cap, reducing")
		margin = capAmount
	}

	// 2. Total-position cap. Clamp to the remaining headroom, abort when
	// the remainder is too small to trade.
	totalUsed := TotalMarginUsed(acct.Positions)
	maxTotal := acct.TotalWalletBalance * risk.MaxTotalPositionPct / 100
	if totalUsed+margin > maxTotal {
		remaining := maxTotal - totalUsed
		if remaining < minRemainingMargin {
			return ApprovedOrder{}, errors.NewSizingError(
				req.Symbol, "total_position_cap", totalUsed+margin, maxTotal,
				"total position limit reached")
		}
		logger.Warn().
			Str("symbol", req.Symbol).
			Float64("requested", margin).
			Float64("remaining", remaining).
			Msg("Total position cap, reducing to remaining headroom")
		margin = remaining
	}

	// 3. Quantity from margin at the live price.
	quantity := margin * float64(leverage) / price

	// 4. Minimum-quantity floor. Flooring can require more margin than
	// requested; that raise is surfaced, never absorbed silently.
	raised := false
	if quantity < risk.MinQuantity {
		quantity = risk.MinQuantity
		minMarginNeeded := quantity * price / float64(leverage)
		logger.Warn().
			Str("symbol", req.Symbol).
			Float64("planned_margin", margin).
			Float64("min_margin_needed", minMarginNeeded).
			Msg("Quantity below exchange minimum, flooring")

		if minMarginNeeded > acct.AvailableBalance {
			return ApprovedOrder{}, errors.NewSizingError(
				req.Symbol, "min_quantity_balance", minMarginNeeded, acct.AvailableBalance,
				"minimum order exceeds available balance")
		}
		if minMarginNeeded > capAmount {
			return ApprovedOrder{}, errors.NewSizingError(
				req.Symbol, "min_quantity_cap", minMarginNeeded, capAmount,
				"minimum order exceeds single-trade cap")
		}
		margin = minMarginNeeded
		raised = true
	}

	// 5. Downward rounding-safety buffer against venue step-size
	// truncation, then the final affordability check.
	estimatedQty := math.Round(quantity*risk.FormattingSafetyFactor*1000) / 1000
	requiredMargin := estimatedQty * price / float64(leverage)
	if requiredMargin > acct.AvailableBalance {
		return ApprovedOrder{}, errors.NewSizingError(
			req.Symbol, "formatted_margin", requiredMargin, acct.AvailableBalance,
			"post-formatting margin exceeds available balance")
	}

	return ApprovedOrder{
		Symbol:                req.Symbol,
		Side:                  req.Side,
		Leverage:              leverage,
		MarginUSD:             margin,
		Quantity:              quantity,
		Price:                 price,
		MarginRaised:          raised,
		EstimatedFormattedQty: estimatedQty,
	}, nil
}
