package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llm-day-trader/internal/eod"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/transcript"
	"llm-day-trader/internal/types"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Autonomous date-by-date portfolio trader",
		Long: `trader replays a portfolio through the trading calendar one day at a
time. Each day an LLM-driven session reads the market, trades through
tools, and every executed trade lands in an append-only ledger.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Configuration file path")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newVerifyCmd(&configPath))
	rootCmd.AddCommand(newPositionsCmd(&configPath))
	rootCmd.AddCommand(newSummarizeCmd(&configPath))
	return rootCmd
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every pending trading day for all configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			sys, err := buildSystem(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.close()
			defer shutdownTracer()

			compressOldTranscripts(ctx, cfg.DataDir)

			results, err := sys.scheduler.Run(ctx, cfg.Agents)
			for _, res := range results {
				fmt.Printf("%-12s %s %-20s steps=%d trades=%d\n",
					res.Identity, types.FormatDate(res.Date), res.Status, res.Steps, res.TradesExecuted)
			}
			return err
		},
	}
}

func newVerifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay every agent's ledger and check its invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			sys, err := buildSystem(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.close()

			failed := false
			for _, identity := range cfg.Agents {
				if err := sys.ledger.VerifyReplay(identity); err != nil {
					failed = true
					fmt.Printf("%-12s FAIL %v\n", identity, err)
					continue
				}
				fmt.Printf("%-12s OK\n", identity)
			}
			if failed {
				return fmt.Errorf("ledger verification failed")
			}
			return nil
		},
	}
}

func newPositionsCmd(configPath *string) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Print each agent's portfolio snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			sys, err := buildSystem(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.close()

			date := time.Now()
			if asOf != "" {
				if date, err = types.ParseDate(asOf); err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
			}

			for _, identity := range cfg.Agents {
				snap, err := sys.ledger.LatestSnapshot(identity, date)
				if err != nil {
					return fmt.Errorf("%s: %w", identity, err)
				}
				line, err := json.Marshal(snap)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %s\n", identity, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Snapshot date in YYYY-MM-DD format (defaults to today)")
	return cmd
}

func newSummarizeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Write per-agent trade summary CSVs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			sys, err := buildSystem(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.close()

			for _, identity := range cfg.Agents {
				records, err := sys.ledger.Records(identity)
				if err != nil {
					return fmt.Errorf("%s: %w", identity, err)
				}
				path, err := eod.SummarizeIdentity(identity, records, cfg.StartingCash(), cfg.DataDir)
				if err != nil {
					return fmt.Errorf("%s: %w", identity, err)
				}
				if path == "" {
					fmt.Printf("%-12s no trades\n", identity)
					continue
				}
				fmt.Printf("%-12s %s\n", identity, path)
			}
			return nil
		},
	}
}

// compressOldTranscripts gzips transcripts past the configured retention
func compressOldTranscripts(ctx context.Context, dataDir string) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := transcript.CompressOlder(dataDir, n); err != nil {
			logger.Warn(ctx, "Failed to compress old transcripts", "error", err)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigc:
			logger.Warn(ctx, "Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func shutdownTracer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Tracer shutdown failed", "error", err)
	}
}
