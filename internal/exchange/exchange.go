// Package exchange provides the derivatives-exchange capability interface
// and implementations. The core consumes exactly these operations and
// assumes nothing about how a venue signs, formats, or routes requests.
package exchange

import (
	"context"

	"perp-trader/internal/models"
)

// Client defines the operations the trading core needs from a venue.
// All calls are fallible; the core catches failures per symbol or per
// decision and never lets them kill a cycle.
type Client interface {
	// Account
	GetAccountBalance(ctx context.Context) (models.AccountSnapshot, error)
	GetPositions(ctx context.Context) ([]models.Position, error)

	// Market data
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error)
	// GetFundingRate returns the current funding rate in percent, or nil
	// when the venue does not expose one.
	GetFundingRate(ctx context.Context, symbol string) (*float64, error)

	// Orders
	OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (models.OrderResult, error)
	OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (models.OrderResult, error)
	// ClosePosition closes quantity of the given position, or the whole
	// position when quantity is nil.
	ClosePosition(ctx context.Context, symbol string, side models.PositionSide, quantity *float64) (models.CloseResult, error)
	PlaceProtectiveOrders(ctx context.Context, req ProtectiveOrderRequest) error
	CancelAllOrders(ctx context.Context, symbol string) error

	// Lifecycle
	Close() error
}

// ProtectiveOrderRequest describes take-profit / stop-loss orders placed
// after an open. A nil percentage skips that leg.
type ProtectiveOrderRequest struct {
	Symbol        string
	Side          models.PositionSide
	Quantity      float64
	EntryPrice    float64
	TakeProfitPct *float64
	StopLossPct   *float64
}
