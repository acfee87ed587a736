// Package cli provides the command-line interface for the trading daemon.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"perp-trader/internal/config"
)

// Version information.
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-25"
)

// App holds the dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Autonomous multi-agent perpetual futures trader",
		Long: `trader runs autonomous trading agents against perpetual futures venues.

Each agent periodically scans its markets, asks its decision model for
actions, and executes them through a shared risk-checked path. Agents
trading on a common account are serialized by a global execution gate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/perp-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("perp-trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
				return
			}
			output.Println(config.DefaultConfigDir())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Storage")
	output.Printf("  Backend: %s\n", cfg.Storage.Backend)
	output.Printf("  Path:    %s\n", cfg.Storage.Path)
	output.Println()

	output.Bold("Execution Gate")
	output.Printf("  Max concurrent: %d\n", cfg.Gate.MaxConcurrent)
	output.Printf("  Timeout:        %.0fs\n", cfg.Gate.TimeoutSeconds)
	output.Println()

	output.Bold(fmt.Sprintf("Agents (%d)", len(cfg.Agents)))
	for _, a := range cfg.Agents {
		output.Printf("  %s (%s)\n", a.ID, a.Name)
		output.Printf("    Exchange: %s, Model: %s/%s\n", a.Exchange.Type, a.LLM.Provider, a.LLM.Model)
		output.Printf("    Interval: %dm, Coins: %v\n", a.Strategy.ScanIntervalMinutes, a.Strategy.DefaultCoins)
		output.Printf("    Budget:   %.0f%% of available balance\n", a.Strategy.MaxAccountUsagePct)
	}
}
