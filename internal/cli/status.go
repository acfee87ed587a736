package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"perp-trader/internal/performance"
	"perp-trader/internal/store"
	"perp-trader/pkg/utils"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-agent history from storage",
		Long: `Reads persisted history and shows each configured agent's last cycle,
equity and realized performance. Works whether or not the daemon is
running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			storage, err := store.Open(app.Config.Storage)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer storage.Close()

			type agentStatus struct {
				AgentID        string  `json:"agent_id"`
				Name           string  `json:"name"`
				LastCycle      int     `json:"last_cycle"`
				AdjustedEquity float64 `json:"adjusted_equity"`
				NetDeposits    float64 `json:"net_deposits"`
				TotalTrades    int     `json:"total_trades"`
				WinRate        float64 `json:"win_rate"`
				TotalPnlUsdt   float64 `json:"total_pnl_usdt"`
			}

			var statuses []agentStatus
			for _, a := range app.Config.Agents {
				cycle, err := storage.LastCycleNumber(cmd.Context(), a.ID)
				if err != nil {
					return fmt.Errorf("agent %s: %w", a.ID, err)
				}
				point, err := storage.LastEquityPoint(cmd.Context(), a.ID)
				if err != nil {
					return fmt.Errorf("agent %s: %w", a.ID, err)
				}
				trades, err := storage.TradeHistory(cmd.Context(), a.ID, 0)
				if err != nil {
					return fmt.Errorf("agent %s: %w", a.ID, err)
				}
				perf := performance.Calculate(trades)

				status := agentStatus{
					AgentID:      a.ID,
					Name:         a.Name,
					LastCycle:    cycle,
					TotalTrades:  perf.TotalTrades,
					WinRate:      perf.WinRate,
					TotalPnlUsdt: perf.TotalPnlUsdt,
				}
				if point != nil {
					status.AdjustedEquity = point.AdjustedEquity
					status.NetDeposits = point.NetDeposits
				}
				statuses = append(statuses, status)
			}

			if output.IsJSON() {
				return output.JSON(statuses)
			}

			table := NewTable(output, "AGENT", "NAME", "CYCLE", "EQUITY", "TRADES", "WIN%", "PNL")
			for _, s := range statuses {
				table.AddRow(
					s.AgentID,
					s.Name,
					fmt.Sprintf("%d", s.LastCycle),
					utils.FormatUSD(s.AdjustedEquity),
					fmt.Sprintf("%d", s.TotalTrades),
					fmt.Sprintf("%.1f", s.WinRate),
					utils.FormatUSD(s.TotalPnlUsdt),
				)
			}
			table.Render()
			return nil
		},
	}
}
