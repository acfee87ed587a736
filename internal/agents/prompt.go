package agents

import (
	"fmt"
	"sort"
	"strings"

	"perp-trader/internal/config"
	"perp-trader/internal/models"
	"perp-trader/internal/performance"
)

// customPromptSections maps operator-configurable prompt keys to their
// headings, in the order they are rendered.
var customPromptSections = []struct {
	key     string
	heading string
}{
	{"trading_philosophy", "**YOUR TRADING PHILOSOPHY:**"},
	{"entry_preferences", "**YOUR ENTRY PREFERENCES:**"},
	{"position_management", "**YOUR POSITION MANAGEMENT:**"},
	{"market_preferences", "**YOUR MARKET PREFERENCES:**"},
	{"additional_rules", "**YOUR ADDITIONAL RULES:**"},
}

// BuildSystemPrompt renders the trading rules and constraints the model
// must respect, from the agent's risk configuration plus any
// operator-supplied custom sections.
func BuildSystemPrompt(strategy config.StrategyConfig) string {
	risk := strategy.Risk
	var b strings.Builder

	b.WriteString("You are an autonomous derivatives trading agent.\n\n")
	b.WriteString("**RULES AND CONSTRAINTS:**\n")
	fmt.Fprintf(&b, "- Max open positions: %d\n", risk.MaxPositions)
	fmt.Fprintf(&b, "- Max leverage: %dx\n", risk.MaxLeverage)
	fmt.Fprintf(&b, "- Max margin per trade: %.0f%% of available balance (%.0f%% when positions are open)\n",
		risk.MaxSingleTradePct, risk.MaxSingleTradeWithPositionsPct)
	fmt.Fprintf(&b, "- Max total position margin: %.0f%% of wallet balance\n", risk.MaxTotalPositionPct)
	if risk.StopLossPct > 0 {
		fmt.Fprintf(&b, "- Suggested stop loss: %.1f%%\n", risk.StopLossPct)
	}
	if risk.TakeProfitPct > 0 {
		fmt.Fprintf(&b, "- Suggested take profit: %.1f%%\n", risk.TakeProfitPct)
	}

	for _, section := range customPromptSections {
		if text := strategy.CustomPrompts[section.key]; text != "" {
			b.WriteString("\n")
			b.WriteString(section.heading)
			b.WriteString("\n")
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRespond with your reasoning followed by a JSON array of decisions. ")
	b.WriteString(`Each decision: {"action": "open_long|open_short|close_long|close_short|hold|wait", ` +
		`"symbol": "...", "leverage": N, "position_size_usd": N, ` +
		`"close_quantity_pct": N, "reasoning": "..."}.`)
	return b.String()
}

// BuildMarketContext renders the account state, open positions,
// performance summary and per-symbol market snapshots for the model.
func BuildMarketContext(
	strategy config.StrategyConfig,
	account models.AccountSnapshot,
	positions []models.Position,
	market map[string]models.SymbolSnapshot,
	perf performance.Metrics,
) string {
	var b strings.Builder

	agentBudget := account.AvailableBalance * strategy.MaxAccountUsagePct / 100

	b.WriteString("**Account:**\n")
	fmt.Fprintf(&b, "Available for trading: $%.2f <- USE THIS FOR DECISIONS\n", agentBudget)
	if strategy.MaxAccountUsagePct < 100 {
		fmt.Fprintf(&b, "(Limited to %.0f%% of $%.2f for multi-agent)\n",
			strategy.MaxAccountUsagePct, account.AvailableBalance)
	}
	fmt.Fprintf(&b, "Total balance: $%.2f\n", account.TotalWalletBalance)
	fmt.Fprintf(&b, "Unrealized P/L: $%+.2f\n\n", account.TotalUnrealizedProfit)

	if perf.TotalTrades > 0 {
		b.WriteString(perf.Format())
		b.WriteString("\n\n")
	}

	if len(positions) > 0 {
		b.WriteString("**Current Positions:**\n")
		for _, pos := range positions {
			fmt.Fprintf(&b, "- %s %s: Entry $%.2f, Current $%.2f, P/L %+.2f%%\n",
				pos.Symbol, strings.ToUpper(string(pos.Side)),
				pos.EntryPrice, pos.MarkPrice, pos.UnrealizedPnlPct())
		}
		b.WriteString("\n")
	}

	b.WriteString("**Market Data:**\n")
	symbols := make([]string, 0, len(market))
	for sym := range market {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		snap := market[sym]
		writeSymbolSnapshot(&b, snap)
		b.WriteString("\n")
	}

	return b.String()
}

func writeSymbolSnapshot(b *strings.Builder, snap models.SymbolSnapshot) {
	// Core view: short-term plus mid-term timeframe.
	if set, ok := snap.Timeframes["3m"]; ok {
		fmt.Fprintf(b, "%s: $%.2f | 3m RSI=%.1f ADX=%.1f MACD=%+.2f Vol=%.2fx\n",
			snap.Symbol, set.LastPrice, set.RSI, set.ADX, set.MACD, set.VolumeRatio)
	} else {
		fmt.Fprintf(b, "%s:\n", snap.Symbol)
	}
	if set, ok := snap.Timeframes["4h"]; ok {
		fmt.Fprintf(b, "  4h: RSI=%.1f ADX=%.1f EMA20=%.2f\n", set.RSI, set.ADX, set.EMA20)
	}

	var extra []string
	for _, tf := range []string{"15m", "1h"} {
		if set, ok := snap.Timeframes[tf]; ok {
			extra = append(extra, fmt.Sprintf("- %s: RSI=%.1f, ADX=%.1f, Volume ratio=%.2fx",
				tf, set.RSI, set.ADX, set.VolumeRatio))
		}
	}
	if len(extra) > 0 {
		b.WriteString("Additional timeframes:\n")
		b.WriteString(strings.Join(extra, "\n"))
		b.WriteString("\n")
	}

	if snap.FundingRate != nil {
		rate := *snap.FundingRate
		sentiment := "neutral"
		switch {
		case rate > 0.03:
			sentiment = "bullish / long-crowded (longs pay shorts)"
		case rate < -0.03:
			sentiment = "bearish / short-crowded (shorts pay longs)"
		}
		fmt.Fprintf(b, "Funding rate: %.4f%% (%s)\n", rate, sentiment)
	}
}
