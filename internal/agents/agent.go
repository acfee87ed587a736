package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perp-trader/internal/accounting"
	"perp-trader/internal/analysis"
	"perp-trader/internal/config"
	"perp-trader/internal/errors"
	"perp-trader/internal/exchange"
	"perp-trader/internal/logging"
	"perp-trader/internal/metrics"
	"perp-trader/internal/models"
	"perp-trader/internal/performance"
	"perp-trader/internal/store"
	"perp-trader/internal/trading"
)

// klineTimeframes are the candle series fetched per symbol each cycle.
var klineTimeframes = []string{"3m", "15m", "1h", "4h"}

// Deps are the collaborators an agent receives at construction. All of
// them are interfaces; nothing is reached through package-level state.
type Deps struct {
	Exchange exchange.Client
	Analyzer analysis.Analyzer
	Caller   DecisionCaller
	Limiter  *ProviderLimiter
	Storage  store.Storage
	Gate     *trading.ExecutionGate
	Logger   zerolog.Logger
}

// Agent runs the complete trading cycle for one configured identity:
// fetch account and market state, ask the decision model, execute the
// approved decisions, reconcile equity, persist everything.
type Agent struct {
	cfg  config.AgentConfig
	deps Deps

	ledger     *accounting.Ledger
	reconciler *accounting.Reconciler
	logger     zerolog.Logger

	mu           sync.Mutex
	running      bool
	cycleCount   int
	startTime    time.Time
	lastSnapshot *models.AccountSnapshot
}

// NewAgent creates an agent and restores its cycle numbering and
// reconciler state from storage, so restarts resume rather than reset.
func NewAgent(ctx context.Context, cfg config.AgentConfig, deps Deps) (*Agent, error) {
	logger := logging.WithAgent(deps.Logger, cfg.ID)

	a := &Agent{
		cfg:        cfg,
		deps:       deps,
		ledger:     accounting.NewLedger(),
		reconciler: accounting.NewReconciler(cfg.ID),
		logger:     logger,
		startTime:  time.Now(),
	}

	lastCycle, err := deps.Storage.LastCycleNumber(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("restoring cycle number: %w", err)
	}
	a.cycleCount = lastCycle

	lastPoint, err := deps.Storage.LastEquityPoint(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("restoring equity state: %w", err)
	}
	trades, err := deps.Storage.TradeHistory(ctx, cfg.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("restoring trade history: %w", err)
	}
	a.reconciler.Restore(lastPoint, len(trades))

	// The ledger is in-memory; after a restart, re-seed it from the venue
	// so existing positions can still be closed. Venue entry prices stand
	// in for the lost originals.
	positions, err := deps.Exchange.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("seeding position ledger: %w", err)
	}
	for _, pos := range positions {
		qty := pos.PositionAmt
		if qty < 0 {
			qty = -qty
		}
		if qty == 0 {
			continue
		}
		a.ledger.RecordOpen(pos.Symbol, pos.Side, pos.EntryPrice, qty, pos.Leverage, time.Now())
	}

	if lastCycle > 0 {
		logger.Info().Int("cycle", lastCycle).Msg("Resuming from persisted history")
	} else {
		logger.Info().Msg("Starting fresh")
	}
	return a, nil
}

// ID returns the agent's identifier.
func (a *Agent) ID() string {
	return a.cfg.ID
}

// ScanInterval returns the configured cycle interval.
func (a *Agent) ScanInterval() time.Duration {
	return time.Duration(a.cfg.Strategy.ScanIntervalMinutes) * time.Minute
}

// Status is a point-in-time view of the agent for operators.
type Status struct {
	AgentID        string
	Name           string
	IsRunning      bool
	CycleCount     int
	RuntimeMinutes int
}

// Status returns the agent's runtime status.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		AgentID:        a.cfg.ID,
		Name:           a.cfg.Name,
		IsRunning:      a.running,
		CycleCount:     a.cycleCount,
		RuntimeMinutes: int(time.Since(a.startTime).Minutes()),
	}
}

func (a *Agent) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

// LastAccountSnapshot returns the snapshot taken at the end of the most
// recent cycle, or nil before the first cycle completes.
func (a *Agent) LastAccountSnapshot() *models.AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSnapshot == nil {
		return nil
	}
	snap := *a.lastSnapshot
	return &snap
}

// RunCycle executes exactly one trading cycle. A gate timeout or any
// other error skips the cycle; the caller just waits for the next
// trigger.
func (a *Agent) RunCycle(ctx context.Context) error {
	a.mu.Lock()
	a.cycleCount++
	cycle := a.cycleCount
	a.mu.Unlock()

	logger := logging.WithCycle(a.logger, cycle)
	logger.Info().Msg("Cycle starting")

	release, err := a.deps.Gate.Acquire(ctx, a.cfg.ID)
	if err != nil {
		metrics.CycleFailures.WithLabelValues(a.cfg.ID).Inc()
		return errors.NewCycleError(a.cfg.ID, cycle, err)
	}
	defer release()

	if err := a.runGatedCycle(ctx, cycle, logger); err != nil {
		metrics.CycleFailures.WithLabelValues(a.cfg.ID).Inc()
		return errors.NewCycleError(a.cfg.ID, cycle, err)
	}

	metrics.CyclesCompleted.WithLabelValues(a.cfg.ID).Inc()
	logger.Info().Msg("Cycle complete")
	return nil
}

func (a *Agent) runGatedCycle(ctx context.Context, cycle int, logger zerolog.Logger) error {
	// Stale open orders hold margin; clear them first, best effort.
	for _, symbol := range a.cfg.Strategy.DefaultCoins {
		if err := a.deps.Exchange.CancelAllOrders(ctx, symbol); err != nil {
			logger.Debug().Err(err).Str("symbol", symbol).Msg("No orders to cancel")
		}
	}

	account, err := a.deps.Exchange.GetAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching account balance: %w", err)
	}
	positions, err := a.deps.Exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetching positions: %w", err)
	}

	budget := account.AvailableBalance * a.cfg.Strategy.MaxAccountUsagePct / 100
	logger.Info().
		Float64("total", account.TotalWalletBalance).
		Float64("available", account.AvailableBalance).
		Float64("budget", budget).
		Int("positions", len(positions)).
		Msg("Account state")

	market := a.fetchMarketData(ctx, positions, logger)

	trades, err := a.deps.Storage.TradeHistory(ctx, a.cfg.ID, 0)
	if err != nil {
		return fmt.Errorf("loading trade history: %w", err)
	}
	perf := performance.Calculate(trades)

	systemPrompt := BuildSystemPrompt(a.cfg.Strategy)
	marketContext := BuildMarketContext(a.cfg.Strategy, account, positions, market, perf)

	logger.Info().Msg("Calling decision model")
	releaseSlot, err := a.deps.Limiter.Acquire(ctx, a.cfg.LLM.Provider)
	if err != nil {
		return fmt.Errorf("acquiring provider slot: %w", err)
	}
	result, err := a.deps.Caller.Decide(ctx, systemPrompt, marketContext)
	releaseSlot()
	if err != nil {
		return fmt.Errorf("decision call failed: %w", err)
	}

	decisions := ParseDecisions(result.RawDecisions)
	logger.Info().Int("actions", len(decisions)).Msg("Decision received")

	a.executeDecisions(ctx, decisions, logger)

	return a.logCycle(ctx, cycle, result.Reasoning, decisions)
}

// fetchMarketData assembles per-symbol snapshots for the configured coins
// plus any symbol with an open position. Failures are per symbol: a
// symbol that cannot be fetched is dropped from the context, nothing
// else.
func (a *Agent) fetchMarketData(ctx context.Context, positions []models.Position, logger zerolog.Logger) map[string]models.SymbolSnapshot {
	symbols := append([]string{}, a.cfg.Strategy.DefaultCoins...)
	for _, pos := range positions {
		seen := false
		for _, s := range symbols {
			if s == pos.Symbol {
				seen = true
				break
			}
		}
		if !seen {
			symbols = append(symbols, pos.Symbol)
		}
	}

	market := make(map[string]models.SymbolSnapshot, len(symbols))
	for _, symbol := range symbols {
		snap, err := a.fetchSymbol(ctx, symbol)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch market data")
			continue
		}
		market[symbol] = snap
	}
	return market
}

func (a *Agent) fetchSymbol(ctx context.Context, symbol string) (models.SymbolSnapshot, error) {
	snap := models.SymbolSnapshot{
		Symbol:     symbol,
		Timeframes: make(map[string]models.IndicatorSet, len(klineTimeframes)),
	}

	for _, tf := range klineTimeframes {
		klines, err := a.deps.Exchange.GetKlines(ctx, symbol, tf, 100)
		if err != nil {
			return models.SymbolSnapshot{}, fmt.Errorf("fetching %s klines: %w", tf, err)
		}
		snap.Timeframes[tf] = a.deps.Analyzer.Analyze(klines, tf)
	}

	rate, err := a.deps.Exchange.GetFundingRate(ctx, symbol)
	if err != nil {
		a.logger.Debug().Err(err).Str("symbol", symbol).Msg("Failed to fetch funding rate")
	} else {
		snap.FundingRate = rate
	}
	return snap, nil
}

// executeDecisions runs every decision through the risk path. A failed or
// rejected decision is logged and skipped; the loop always continues.
func (a *Agent) executeDecisions(ctx context.Context, decisions []models.Decision, logger zerolog.Logger) {
	for _, d := range decisions {
		var err error
		switch d.Action {
		case models.ActionOpenLong:
			err = a.executeOpen(ctx, d, models.SideLong, logger)
		case models.ActionOpenShort:
			err = a.executeOpen(ctx, d, models.SideShort, logger)
		case models.ActionCloseLong:
			_, err = a.executeClose(ctx, d, models.SideLong, logger)
		case models.ActionCloseShort:
			_, err = a.executeClose(ctx, d, models.SideShort, logger)
		case models.ActionHold, models.ActionWait:
			logging.LogDecision(logger, d.Symbol, string(d.Action), d.Reasoning)
			continue
		default:
			logger.Debug().Str("action", string(d.Action)).Msg("Ignoring unknown action")
			continue
		}

		if err != nil {
			logger.Error().Err(err).
				Str("action", string(d.Action)).
				Str("symbol", d.Symbol).
				Msg("Decision skipped")
			metrics.DecisionsSkipped.WithLabelValues(a.cfg.ID, string(d.Action)).Inc()
			continue
		}
		metrics.DecisionsExecuted.WithLabelValues(a.cfg.ID, string(d.Action)).Inc()
	}
}

func (a *Agent) executeOpen(ctx context.Context, d models.Decision, side models.PositionSide, logger zerolog.Logger) error {
	symbol := strings.ToUpper(d.Symbol)
	leverage := d.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	account, err := a.deps.Exchange.GetAccountBalance(ctx)
	if err != nil {
		return errors.NewOrderError(symbol, string(d.Action), err)
	}
	positions, err := a.deps.Exchange.GetPositions(ctx)
	if err != nil {
		return errors.NewOrderError(symbol, string(d.Action), err)
	}
	price, err := a.deps.Exchange.GetMarketPrice(ctx, symbol)
	if err != nil {
		return errors.NewOrderError(symbol, string(d.Action), err)
	}

	approved, err := trading.SizeOpenOrder(
		trading.OpenRequest{
			Symbol:             symbol,
			Side:               side,
			Leverage:           leverage,
			RequestedMarginUSD: d.PositionSizeUSD,
		},
		trading.AccountState{
			AvailableBalance:   account.AvailableBalance,
			TotalWalletBalance: account.TotalWalletBalance,
			Positions:          positions,
		},
		price, a.cfg.Strategy.Risk, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("margin", approved.MarginUSD).
		Int("leverage", approved.Leverage).
		Float64("quantity", approved.Quantity).
		Bool("margin_raised", approved.MarginRaised).
		Msg("Opening position")

	var result models.OrderResult
	if side == models.SideLong {
		result, err = a.deps.Exchange.OpenLong(ctx, symbol, approved.Quantity, approved.Leverage)
	} else {
		result, err = a.deps.Exchange.OpenShort(ctx, symbol, approved.Quantity, approved.Leverage)
	}
	if err != nil {
		return errors.NewOrderError(symbol, string(d.Action), err)
	}

	a.ledger.RecordOpen(symbol, side, price, approved.Quantity, approved.Leverage, time.Now())

	a.maybePlaceProtectiveOrders(ctx, symbol, side, result, approved.Quantity, price, logger)
	return nil
}

func (a *Agent) executeClose(ctx context.Context, d models.Decision, side models.PositionSide, logger zerolog.Logger) (models.CloseResult, error) {
	symbol := strings.ToUpper(d.Symbol)

	entry, ok := a.ledger.Get(symbol, side)
	if !ok {
		return models.CloseResult{}, errors.NewOrderError(symbol, string(d.Action),
			fmt.Errorf("%w: no tracked %s position", errors.ErrPositionNotFound, side))
	}

	closeQty, err := trading.ResolveCloseQuantity(entry.Quantity, d.CloseQuantity, d.CloseQuantityPct)
	if err != nil {
		return models.CloseResult{}, errors.NewOrderError(symbol, string(d.Action), err)
	}

	price, err := a.deps.Exchange.GetMarketPrice(ctx, symbol)
	if err != nil {
		return models.CloseResult{}, errors.NewOrderError(symbol, string(d.Action), err)
	}

	result, err := a.deps.Exchange.ClosePosition(ctx, symbol, side, &closeQty)
	if err != nil {
		return models.CloseResult{}, errors.NewOrderError(symbol, string(d.Action), err)
	}
	closedQty := result.ClosedQuantity
	if closedQty == 0 {
		closedQty = closeQty
	}

	trade, err := a.ledger.RecordClose(symbol, side, price, closedQty, time.Now())
	if err != nil {
		return models.CloseResult{}, errors.NewOrderError(symbol, string(d.Action), err)
	}
	trade.ID = uuid.NewString()
	trade.AgentID = a.cfg.ID

	if err := a.deps.Storage.CreateTrade(ctx, trade); err != nil {
		// The venue close went through; losing the record is a storage
		// problem, not a reason to unwind the trade.
		logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to persist trade record")
	}

	logging.LogTrade(logger, symbol, string(side), trade.Quantity, price, trade.PnlUsdt)
	return result, nil
}

// ClosePositionManual closes (part of) a position on operator request. It
// routes through the same execution gate and close path as automated
// decisions; there is no bypass.
func (a *Agent) ClosePositionManual(ctx context.Context, symbol string, side models.PositionSide, quantity, quantityPct *float64) (models.CloseResult, error) {
	release, err := a.deps.Gate.Acquire(ctx, a.cfg.ID)
	if err != nil {
		return models.CloseResult{}, err
	}
	defer release()

	action := models.ActionCloseLong
	if side == models.SideShort {
		action = models.ActionCloseShort
	}
	return a.executeClose(ctx, models.Decision{
		Action:           action,
		Symbol:           symbol,
		CloseQuantity:    quantity,
		CloseQuantityPct: quantityPct,
	}, side, a.logger)
}

func (a *Agent) maybePlaceProtectiveOrders(ctx context.Context, symbol string, side models.PositionSide, result models.OrderResult, fallbackQty, fallbackPrice float64, logger zerolog.Logger) {
	orders := a.cfg.Strategy.AdvancedOrders

	var tpPct, slPct *float64
	if orders.EnableTakeProfit && orders.TakeProfitPct > 0 {
		v := orders.TakeProfitPct
		tpPct = &v
	}
	if orders.EnableStopLoss && orders.StopLossPct > 0 {
		v := orders.StopLossPct
		slPct = &v
	}
	if tpPct == nil && slPct == nil {
		return
	}

	quantity := fallbackQty
	entryPrice := fallbackPrice
	if result.Quantity > 0 {
		quantity = result.Quantity
	}
	if result.Price > 0 {
		entryPrice = result.Price
	}

	err := a.deps.Exchange.PlaceProtectiveOrders(ctx, exchange.ProtectiveOrderRequest{
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		EntryPrice:    entryPrice,
		TakeProfitPct: tpPct,
		StopLossPct:   slPct,
	})
	if err != nil {
		logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to place protective orders")
	}
}

// logCycle reconciles the post-execution account state and persists the
// cycle's equity point and decision log.
func (a *Agent) logCycle(ctx context.Context, cycle int, reasoning string, decisions []models.Decision) error {
	account, err := a.deps.Exchange.GetAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching post-cycle balance: %w", err)
	}
	positions, err := a.deps.Exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetching post-cycle positions: %w", err)
	}

	trades, err := a.deps.Storage.TradeHistory(ctx, a.cfg.ID, 0)
	if err != nil {
		return fmt.Errorf("loading trade history: %w", err)
	}

	now := time.Now()
	point := a.reconciler.Reconcile(now, cycle, account, trades)
	if point.ExternalCashFlow != 0 {
		a.logger.Debug().
			Float64("external_cash_flow", point.ExternalCashFlow).
			Float64("net_deposits", point.NetDeposits).
			Msg("Detected external cash flow")
	}

	if err := a.deps.Storage.CreateEquityPoint(ctx, point); err != nil {
		return fmt.Errorf("persisting equity point: %w", err)
	}

	log := models.DecisionLog{
		ID:             uuid.NewString(),
		AgentID:        a.cfg.ID,
		Cycle:          cycle,
		Timestamp:      now,
		ChainOfThought: reasoning,
		Decisions:      decisions,
		Account:        a.reconciler.AugmentAccount(account),
		Positions:      positions,
	}
	if err := a.deps.Storage.CreateDecisionLog(ctx, log); err != nil {
		return fmt.Errorf("persisting decision log: %w", err)
	}

	a.mu.Lock()
	a.lastSnapshot = &account
	a.mu.Unlock()
	return nil
}
