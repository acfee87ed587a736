package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

// PaperExchange implements Client against simulated venue state. It keeps
// real margin bookkeeping so sizing and reconciliation behave as they
// would against a live venue.
type PaperExchange struct {
	mu sync.RWMutex

	walletBalance float64
	positions     map[string]*models.Position // key: symbol_side
	prices        map[string]float64
	fundingRates  map[string]float64
	rng           *rand.Rand
}

// PaperConfig holds configuration for the simulated venue.
type PaperConfig struct {
	InitialBalance float64
	Prices         map[string]float64
}

// NewPaperExchange creates a simulated exchange seeded with the given
// balance and prices.
func NewPaperExchange(cfg PaperConfig) *PaperExchange {
	balance := cfg.InitialBalance
	if balance == 0 {
		balance = 10000
	}
	prices := make(map[string]float64, len(cfg.Prices))
	for sym, p := range cfg.Prices {
		prices[sym] = p
	}
	return &PaperExchange{
		walletBalance: balance,
		positions:     make(map[string]*models.Position),
		prices:        prices,
		fundingRates:  make(map[string]float64),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func positionKey(symbol string, side models.PositionSide) string {
	return symbol + "_" + string(side)
}

// SetPrice sets the mark price for a symbol.
func (p *PaperExchange) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	for _, pos := range p.positions {
		if pos.Symbol == symbol {
			pos.MarkPrice = price
		}
	}
}

// SetFundingRate sets the funding rate (percent) reported for a symbol.
func (p *PaperExchange) SetFundingRate(symbol string, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundingRates[symbol] = rate
}

// Deposit simulates an external deposit (negative amount withdraws).
func (p *PaperExchange) Deposit(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.walletBalance += amount
}

// GetAccountBalance returns the current simulated account snapshot.
func (p *PaperExchange) GetAccountBalance(ctx context.Context) (models.AccountSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unrealized, marginUsed float64
	for _, pos := range p.positions {
		unrealized += p.unrealizedLocked(pos)
		marginUsed += pos.MarginUsed()
	}

	return models.AccountSnapshot{
		TotalWalletBalance:    p.walletBalance,
		AvailableBalance:      p.walletBalance - marginUsed,
		TotalUnrealizedProfit: unrealized,
	}, nil
}

func (p *PaperExchange) unrealizedLocked(pos *models.Position) float64 {
	if pos.Side == models.SideLong {
		return (pos.MarkPrice - pos.EntryPrice) * pos.PositionAmt
	}
	return (pos.EntryPrice - pos.MarkPrice) * pos.PositionAmt
}

// GetPositions returns all open simulated positions.
func (p *PaperExchange) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// GetMarketPrice returns the current price for a symbol.
func (p *PaperExchange) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errors.ErrSymbolNotFound, symbol)
	}
	return price, nil
}

// GetKlines synthesizes a random-walk candle series ending at the current
// price. Good enough to exercise indicator plumbing in paper mode.
func (p *PaperExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	price, err := p.GetMarketPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	step := intervalDuration(interval)
	klines := make([]models.Kline, limit)
	cur := price
	// Walk backwards from the live price so the last close matches it.
	for i := limit - 1; i >= 0; i-- {
		drift := cur * 0.002 * (p.rng.Float64() - 0.5)
		open := cur - drift
		high := math.Max(open, cur) * (1 + 0.001*p.rng.Float64())
		low := math.Min(open, cur) * (1 - 0.001*p.rng.Float64())
		klines[i] = models.Kline{
			OpenTime: time.Now().Add(-step * time.Duration(limit-i)),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    cur,
			Volume:   1000 * (0.5 + p.rng.Float64()),
		}
		cur = open
	}
	return klines, nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "3m":
		return 3 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	default:
		return time.Minute
	}
}

// GetFundingRate returns the configured funding rate, or nil when none
// has been set for the symbol.
func (p *PaperExchange) GetFundingRate(ctx context.Context, symbol string) (*float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.fundingRates[symbol]
	if !ok {
		return nil, nil
	}
	r := rate
	return &r, nil
}

// OpenLong opens or extends a simulated long position.
func (p *PaperExchange) OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (models.OrderResult, error) {
	return p.open(symbol, models.SideLong, quantity, leverage)
}

// OpenShort opens or extends a simulated short position.
func (p *PaperExchange) OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (models.OrderResult, error) {
	return p.open(symbol, models.SideShort, quantity, leverage)
}

func (p *PaperExchange) open(symbol string, side models.PositionSide, quantity float64, leverage int) (models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return models.OrderResult{}, fmt.Errorf("%w: %s", errors.ErrSymbolNotFound, symbol)
	}
	if quantity <= 0 {
		return models.OrderResult{}, fmt.Errorf("quantity must be positive, got %f", quantity)
	}
	if leverage <= 0 {
		leverage = 1
	}

	var marginUsed float64
	for _, pos := range p.positions {
		marginUsed += pos.MarginUsed()
	}
	needed := quantity * price / float64(leverage)
	if needed > p.walletBalance-marginUsed {
		return models.OrderResult{}, fmt.Errorf("%w: need %.2f, available %.2f",
			errors.ErrInsufficientMargin, needed, p.walletBalance-marginUsed)
	}

	key := positionKey(symbol, side)
	if pos, exists := p.positions[key]; exists {
		// Venue-side averaging. The core's own ledger intentionally
		// keeps its first entry price instead.
		total := pos.PositionAmt + quantity
		pos.EntryPrice = (pos.EntryPrice*pos.PositionAmt + price*quantity) / total
		pos.PositionAmt = total
		pos.MarkPrice = price
	} else {
		p.positions[key] = &models.Position{
			Symbol:      symbol,
			Side:        side,
			PositionAmt: quantity,
			EntryPrice:  price,
			MarkPrice:   price,
			Leverage:    leverage,
		}
	}

	return models.OrderResult{Price: price, Quantity: quantity}, nil
}

// ClosePosition closes quantity of a position, or all of it when quantity
// is nil. Realized P&L settles into the wallet balance.
func (p *PaperExchange) ClosePosition(ctx context.Context, symbol string, side models.PositionSide, quantity *float64) (models.CloseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := positionKey(symbol, side)
	pos, ok := p.positions[key]
	if !ok {
		return models.CloseResult{}, fmt.Errorf("%w: %s %s", errors.ErrPositionNotFound, symbol, side)
	}

	price, ok := p.prices[symbol]
	if !ok {
		price = pos.MarkPrice
	}

	closeQty := pos.PositionAmt
	if quantity != nil {
		closeQty = math.Min(pos.PositionAmt, math.Max(0, *quantity))
	}
	if closeQty <= 0 {
		return models.CloseResult{}, errors.ErrNothingToClose
	}

	var pnl float64
	if side == models.SideLong {
		pnl = (price - pos.EntryPrice) * closeQty
	} else {
		pnl = (pos.EntryPrice - price) * closeQty
	}
	p.walletBalance += pnl

	remaining := pos.PositionAmt - closeQty
	fullyClosed := remaining <= 1e-9
	if fullyClosed {
		delete(p.positions, key)
	} else {
		pos.PositionAmt = remaining
		pos.MarkPrice = price
	}

	return models.CloseResult{ClosedQuantity: closeQty, FullyClosed: fullyClosed}, nil
}

// PlaceProtectiveOrders is accepted and discarded; the simulation does not
// run a matching engine for conditional orders.
func (p *PaperExchange) PlaceProtectiveOrders(ctx context.Context, req ProtectiveOrderRequest) error {
	if req.TakeProfitPct == nil && req.StopLossPct == nil {
		return fmt.Errorf("protective order request has neither leg enabled")
	}
	return nil
}

// CancelAllOrders is a no-op for the simulation.
func (p *PaperExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	return nil
}

// Close releases nothing for the simulation.
func (p *PaperExchange) Close() error {
	return nil
}
