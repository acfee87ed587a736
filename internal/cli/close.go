package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"perp-trader/internal/agents"
	"perp-trader/internal/analysis"
	"perp-trader/internal/models"
	"perp-trader/internal/store"
	"perp-trader/internal/trading"
)

func newCloseCmd(app *App) *cobra.Command {
	var (
		agentID  string
		sideFlag string
		quantity float64
		pct      float64
	)

	cmd := &cobra.Command{
		Use:   "close SYMBOL",
		Short: "Manually close (part of) a position",
		Long: `Closes a tracked position through the same gated execution path the
agents use. With no --quantity or --pct the whole position is closed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			side := models.PositionSide(strings.ToLower(sideFlag))
			if !side.Valid() {
				return fmt.Errorf("invalid side %q (must be long or short)", sideFlag)
			}

			agentCfg, ok := app.Config.AgentByID(agentID)
			if !ok {
				return fmt.Errorf("unknown agent: %s", agentID)
			}

			storage, err := store.Open(app.Config.Storage)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer storage.Close()

			client, err := buildExchange(agentCfg.Exchange)
			if err != nil {
				return err
			}
			defer client.Close()

			gate := trading.NewExecutionGate(
				int64(app.Config.Gate.MaxConcurrent),
				time.Duration(app.Config.Gate.TimeoutSeconds*float64(time.Second)),
				app.Logger)

			agent, err := agents.NewAgent(cmd.Context(), agentCfg, agents.Deps{
				Exchange: client,
				Analyzer: analysis.NewTechnicalAnalyzer(),
				Caller:   agents.NewOpenAICaller(agentCfg.LLM),
				Limiter:  agents.NewProviderLimiter(1),
				Storage:  storage,
				Gate:     gate,
				Logger:   app.Logger,
			})
			if err != nil {
				return err
			}

			var qtyPtr, pctPtr *float64
			if cmd.Flags().Changed("quantity") {
				qtyPtr = &quantity
			}
			if cmd.Flags().Changed("pct") {
				pctPtr = &pct
			}

			result, err := agent.ClosePositionManual(cmd.Context(), symbol, side, qtyPtr, pctPtr)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":          symbol,
					"side":            side,
					"closed_quantity": result.ClosedQuantity,
					"fully_closed":    result.FullyClosed,
				})
			}
			if result.FullyClosed {
				output.Success("Closed %s %s position (%.4f)", symbol, side, result.ClosedQuantity)
			} else {
				output.Success("Partially closed %s %s: %.4f", symbol, side, result.ClosedQuantity)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent id owning the position")
	cmd.Flags().StringVar(&sideFlag, "side", "long", "position side: long or short")
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "absolute quantity to close")
	cmd.Flags().Float64Var(&pct, "pct", 0, "percentage of the position to close")
	cmd.MarkFlagRequired("agent")

	return cmd
}
