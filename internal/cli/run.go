package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"perp-trader/internal/agents"
	"perp-trader/internal/analysis"
	"perp-trader/internal/config"
	"perp-trader/internal/exchange"
	"perp-trader/internal/metrics"
	"perp-trader/internal/store"
	"perp-trader/internal/trading"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run all configured agents until interrupted",
		Long: `Starts every configured agent on its scan interval and blocks until
SIGINT or SIGTERM. Shutdown waits for in-flight cycles to finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), app)
		},
	}
}

func runDaemon(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents configured")
	}

	storage, err := store.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer storage.Close()

	gate := trading.NewExecutionGate(
		int64(cfg.Gate.MaxConcurrent),
		time.Duration(cfg.Gate.TimeoutSeconds*float64(time.Second)),
		logger)

	maxCalls := 1
	for _, a := range cfg.Agents {
		if a.LLM.MaxConcurrent > maxCalls {
			maxCalls = a.LLM.MaxConcurrent
		}
	}
	limiter := agents.NewProviderLimiter(maxCalls)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler := agents.NewAgentScheduler(logger)
	var exchanges []exchange.Client

	for _, agentCfg := range cfg.Agents {
		client, err := buildExchange(agentCfg.Exchange)
		if err != nil {
			closeAll(exchanges)
			return fmt.Errorf("agent %s: %w", agentCfg.ID, err)
		}
		exchanges = append(exchanges, client)

		agent, err := agents.NewAgent(runCtx, agentCfg, agents.Deps{
			Exchange: client,
			Analyzer: analysis.NewTechnicalAnalyzer(),
			Caller:   agents.NewOpenAICaller(agentCfg.LLM),
			Limiter:  limiter,
			Storage:  storage,
			Gate:     gate,
			Logger:   logger,
		})
		if err != nil {
			closeAll(exchanges)
			return fmt.Errorf("agent %s: %w", agentCfg.ID, err)
		}
		if err := scheduler.Add(runCtx, agent); err != nil {
			closeAll(exchanges)
			return fmt.Errorf("agent %s: %w", agentCfg.ID, err)
		}
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Listen); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		logger.Info().Str("listen", cfg.Metrics.Listen).Msg("Metrics endpoint enabled")
	}

	logger.Info().Int("agents", len(cfg.Agents)).Msg("Trader running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}

	scheduler.Stop()
	cancel()
	closeAll(exchanges)
	return nil
}

// buildExchange constructs the venue client for one agent, wrapped with
// retry and circuit-breaker protection.
func buildExchange(cfg config.ExchangeConfig) (exchange.Client, error) {
	switch cfg.Type {
	case "paper":
		return exchange.NewResilientClient(exchange.NewPaperExchange(exchange.PaperConfig{
			InitialBalance: cfg.InitialBalance,
		})), nil
	default:
		return nil, fmt.Errorf("unknown exchange type: %s", cfg.Type)
	}
}

func closeAll(exchanges []exchange.Client) {
	for _, c := range exchanges {
		_ = c.Close()
	}
}
